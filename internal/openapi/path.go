package openapi

import "regexp"

// Parameter names may hold any character except the segment and template
// delimiters, so {user-id} and {repo.name} convert like {id}.
var (
	reBraceParam = regexp.MustCompile(`\{([^/{}]+)\}`)
	reColonParam = regexp.MustCompile(`:([^/:]+)`)
)

// ConvertPathTemplate rewrites OpenAPI brace parameters ({id}) into the
// colon form (:id) used by route maps. Templates without braces are returned
// unchanged, so the conversion is idempotent.
func ConvertPathTemplate(path string) string {
	return reBraceParam.ReplaceAllString(path, ":$1")
}

// PathParams lists the colon parameters of a template in order of appearance.
func PathParams(template string) []string {
	matches := reColonParam.FindAllStringSubmatch(template, -1)
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, m[1])
	}
	return names
}

// ExpandPath substitutes every :param in template with what value
// returns for it. Substitution stops at the first parameter value cannot
// supply, whose name is returned as missing.
func ExpandPath(template string, value func(name string) (string, bool)) (path, missing string) {
	path = reColonParam.ReplaceAllStringFunc(template, func(seg string) string {
		if missing != "" {
			return seg
		}
		name := seg[1:]
		v, ok := value(name)
		if !ok {
			missing = name
			return seg
		}
		return v
	})
	if missing != "" {
		return "", missing
	}
	return path, ""
}

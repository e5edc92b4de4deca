package content

import "strings"

// Join appends name to the parent path.
func Join(parent, name string) string {
	if parent == "/" {
		return "/" + name
	}
	return parent + "/" + name
}

// Parent returns the parent path, "/" for top-level paths and "" for the root.
func Parent(path string) string {
	if path == "/" || path == "" {
		return ""
	}
	i := strings.LastIndex(path, "/")
	if i <= 0 {
		return "/"
	}
	return path[:i]
}

// LastElement returns the last segment of path.
func LastElement(path string) string {
	return path[strings.LastIndex(path, "/")+1:]
}

// Ancestors returns the ancestors of path from the top-level segment down,
// excluding the root and the path itself.
func Ancestors(path string) []string {
	var out []string
	for p := Parent(path); p != "" && p != "/"; p = Parent(p) {
		out = append(out, p)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// IsDescendant reports whether path lies strictly below root.
func IsDescendant(root, path string) bool {
	if root == "/" {
		return path != "/" && strings.HasPrefix(path, "/")
	}
	return strings.HasPrefix(path, root+"/")
}

// ValidatePath checks that path is absolute, has no empty segments and no
// trailing slash.
func ValidatePath(path string) error {
	if !strings.HasPrefix(path, "/") || path == "/" {
		return ErrInvalidPath
	}
	if strings.HasSuffix(path, "/") || strings.Contains(path, "//") {
		return ErrInvalidPath
	}
	for _, seg := range strings.Split(path[1:], "/") {
		if seg == "." || seg == ".." {
			return ErrInvalidPath
		}
	}
	return nil
}

// LikePrefix returns a LIKE pattern matching every path strictly below path.
func LikePrefix(path string) string {
	return escapeLike(path) + "/%"
}

// escapeLike escapes LIKE metacharacters so a path can be used as a literal prefix.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

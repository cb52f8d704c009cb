package build

import (
	"net/url"
	"path"
	"strings"
)

// GetPublicPath joins the public base with the base name of filename.
// Absolute URL bases are URL-joined; site paths always gain a leading
// slash.
//
//	GetPublicPath("a", "c.png")               == "/a/c.png"
//	GetPublicPath("/a/b", "b/c/d.png")        == "/a/b/d.png"
//	GetPublicPath("http://foo.bar/", "a.png") == "http://foo.bar/a.png"
func GetPublicPath(base, filename string) string {
	name := path.Base(strings.ReplaceAll(filename, "\\", "/"))

	if u, err := url.Parse(base); err == nil && u.Scheme != "" && u.Host != "" {
		return u.JoinPath(name).String()
	}
	if strings.HasPrefix(base, "//") {
		return strings.TrimSuffix(base, "/") + "/" + name
	}

	return path.Join("/", base, name)
}

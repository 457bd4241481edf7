package epub

import "github.com/folioglyph/folioglyph/pkg/ebookerr"

func errMissingContent(what string) error {
	return ebookerr.MissingContent(what)
}

func errMalformed(detail string) error {
	return ebookerr.MalformedFile("epub", detail)
}

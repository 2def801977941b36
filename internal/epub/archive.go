package epub

import (
	"archive/zip"
	"encoding/xml"
	"errors"
	"io"
	"path"
	"strings"

	"github.com/yuanying/ebookkit/internal/ebook"
)

// MediaType is the exact content of the mimetype entry.
const MediaType = "application/epub+zip"

const containerPath = "META-INF/container.xml"

// Archive provides access to the files of an OCF container.
type Archive struct {
	zipReader *zip.ReadCloser
	files     map[string]*zip.File
	order     []string
	opfPath   string
}

// container.xml structure
type container struct {
	Rootfile []struct {
		FullPath  string `xml:"full-path,attr"`
		MediaType string `xml:"media-type,attr"`
	} `xml:"rootfiles>rootfile"`
}

var (
	ErrInvalidMimetype    = errors.New("invalid mimetype: must be 'application/epub+zip'")
	ErrMimetypeCompressed = errors.New("mimetype must not be compressed")
	ErrMimetypeNotFirst   = errors.New("mimetype must be the first archive entry")
	ErrMimetypeNotFound   = errors.New("mimetype file not found")
	ErrContainerNotFound  = errors.New("META-INF/container.xml not found")
	ErrOPFPathNotFound    = errors.New("OPF path not found in container.xml")
	ErrFileNotFound       = errors.New("file not found in archive")
)

// Open opens an EPUB file and locates its package document.
func Open(filename string) (*Archive, error) {
	zr, err := zip.OpenReader(filename)
	if err != nil {
		return nil, ebook.Wrap(ebook.KindZip, err, "open %s", filename)
	}

	a := &Archive{
		zipReader: zr,
		files:     make(map[string]*zip.File, len(zr.File)),
	}
	for _, f := range zr.File {
		name := normalizePath(f.Name)
		a.files[name] = f
		a.order = append(a.order, name)
	}

	if err := a.parseContainer(); err != nil {
		zr.Close()
		return nil, err
	}
	return a, nil
}

// Close closes the underlying zip file.
func (a *Archive) Close() error {
	return a.zipReader.Close()
}

// OPFPath returns the archive path of the package document.
func (a *Archive) OPFPath() string {
	return a.opfPath
}

// Files returns every archive entry keyed by normalized path.
func (a *Archive) Files() map[string]*zip.File {
	return a.files
}

// Names returns the normalized entry names in archive order.
func (a *Archive) Names() []string {
	return a.order
}

// ReadFile reads one archive entry.
func (a *Archive) ReadFile(name string) ([]byte, error) {
	name = normalizePath(name)
	f, ok := a.files[name]
	if !ok {
		return nil, ebook.Wrap(ebook.KindNotFound, ErrFileNotFound, "%s", name)
	}

	rc, err := f.Open()
	if err != nil {
		return nil, ebook.Wrap(ebook.KindZip, err, "open %s", name)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, ebook.Wrap(ebook.KindZip, err, "read %s", name)
	}
	return data, nil
}

// VerifyMimetype checks the OCF rule that mimetype is the first entry,
// stored uncompressed, with the exact EPUB media type.
func (a *Archive) VerifyMimetype() error {
	f, ok := a.files["mimetype"]
	if !ok {
		return ErrMimetypeNotFound
	}
	if len(a.order) == 0 || a.order[0] != "mimetype" {
		return ErrMimetypeNotFirst
	}
	if f.Method != zip.Store {
		return ErrMimetypeCompressed
	}

	content, err := a.ReadFile("mimetype")
	if err != nil {
		return err
	}
	if string(content) != MediaType {
		return ErrInvalidMimetype
	}
	return nil
}

// parseContainer parses container.xml to extract the OPF path.
func (a *Archive) parseContainer() error {
	content, err := a.ReadFile(containerPath)
	if err != nil {
		return ebook.Wrap(ebook.KindNotFound, ErrContainerNotFound, "%s", containerPath)
	}

	var c container
	if err := xml.Unmarshal(content, &c); err != nil {
		return ebook.Wrap(ebook.KindXML, err, "parse %s", containerPath)
	}

	for _, rf := range c.Rootfile {
		if rf.FullPath == "" {
			continue
		}
		if rf.MediaType == "application/oebps-package+xml" || rf.MediaType == "" {
			a.opfPath = normalizePath(rf.FullPath)
			return nil
		}
	}
	for _, rf := range c.Rootfile {
		if rf.FullPath != "" {
			a.opfPath = normalizePath(rf.FullPath)
			return nil
		}
	}

	return ebook.Wrap(ebook.KindNotFound, ErrOPFPathNotFound, "%s", containerPath)
}

// normalizePath removes a leading "./" and cleans the path.
func normalizePath(p string) string {
	p = strings.TrimPrefix(p, "./")
	if p == "" {
		return p
	}
	return path.Clean(p)
}

package pdf

import (
	"bytes"
	"encoding/hex"
	"io"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/yuanying/ebookkit/internal/ebook"
)

const (
	pageWidth  = 612
	pageHeight = 792
)

// writeDocument writes a one-page document with a Helvetica text run and
// an optional Info dictionary.
func writeDocument(w io.Writer, meta ebook.Metadata, content string) error {
	ctx, err := pdfcpu.CreateContextWithXRefTable(newConfiguration(), &types.Dim{Width: pageWidth, Height: pageHeight})
	if err != nil {
		return ebook.Wrap(ebook.KindPDF, err, "create PDF context")
	}
	xRefTable := ctx.XRefTable

	if err := addTextPage(xRefTable, content); err != nil {
		return ebook.Wrap(ebook.KindPDF, err, "build PDF page")
	}

	info := types.Dict{}
	for key, value := range map[string]string{
		"Title":   meta.Title,
		"Author":  meta.Author,
		"Subject": meta.Publisher,
	} {
		if value != "" {
			info[key] = infoObject(value)
		}
	}
	if len(info) > 0 {
		ir, err := xRefTable.IndRefForNewObject(info)
		if err != nil {
			return ebook.Wrap(ebook.KindPDF, err, "add Info dictionary")
		}
		xRefTable.Info = ir
	}

	if err := api.WriteContext(ctx, w); err != nil {
		return ebook.Wrap(ebook.KindPDF, err, "write PDF")
	}
	return nil
}

// addTextPage appends a page showing content to the page tree root.
func addTextPage(xRefTable *model.XRefTable, content string) error {
	pagesRef, err := xRefTable.Pages()
	if err != nil {
		return err
	}
	pages, err := xRefTable.DereferenceDict(*pagesRef)
	if err != nil {
		return err
	}

	fontRef, err := xRefTable.IndRefForNewObject(types.Dict{
		"Type":     types.Name("Font"),
		"Subtype":  types.Name("Type1"),
		"BaseFont": types.Name("Helvetica"),
	})
	if err != nil {
		return err
	}

	var stream bytes.Buffer
	stream.WriteString("BT /F1 12 Tf 50 750 Td (")
	stream.Write(escape(encodeText(content)))
	stream.WriteString(") Tj ET")
	sd, err := xRefTable.NewStreamDictForBuf(stream.Bytes())
	if err != nil {
		return err
	}
	if err := sd.Encode(); err != nil {
		return err
	}
	contentRef, err := xRefTable.IndRefForNewObject(*sd)
	if err != nil {
		return err
	}

	page := types.Dict{
		"Type":     types.Name("Page"),
		"Parent":   *pagesRef,
		"MediaBox": types.RectForDim(pageWidth, pageHeight).Array(),
		"Resources": types.Dict{
			"Font": types.Dict{"F1": *fontRef},
		},
		"Contents": *contentRef,
	}
	pageRef, err := xRefTable.IndRefForNewObject(page)
	if err != nil {
		return err
	}

	kids, _ := pages["Kids"].(types.Array)
	pages.Update("Kids", append(kids, *pageRef))
	pages.Update("Count", types.Integer(len(kids)+1))
	xRefTable.PageCount = len(kids) + 1
	return nil
}

// infoObject encodes a text string as a literal, or as a hex string with a
// UTF-16 byte order mark when it is not ASCII.
func infoObject(s string) types.Object {
	b, ascii := encodeInfoString(s)
	if ascii {
		return types.StringLiteral(escape(b))
	}
	return types.HexLiteral(hex.EncodeToString(b))
}

package mobi

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/yuanying/ebookkit/internal/ebook"
)

// BookConfig holds everything written into a KF8 book.
type BookConfig struct {
	Title        string
	HTML         []byte
	Metadata     ebook.Metadata
	ImageRecords [][]byte
	NCXRecord    []byte // optional navigation record, stored after the images
	Compression  uint16
	CreationTime time.Time
	UniqueID     *uint32
	CoverIndex   *int // position in ImageRecords; nil means no cover
}

// BookWriter assembles a KF8 Palm database.
type BookWriter struct {
	cfg BookConfig
}

// NewBookWriter validates cfg. Compression defaults to none.
func NewBookWriter(cfg BookConfig) (*BookWriter, error) {
	if len(cfg.HTML) == 0 {
		return nil, ebook.Errorf(ebook.KindInvalidStructure, "book has no text")
	}
	if cfg.Compression == 0 {
		cfg.Compression = CompressionNone
	}
	if cfg.Compression != CompressionNone && cfg.Compression != CompressionPalmDoc {
		return nil, ebook.Errorf(ebook.KindNotSupported, "compression type %d", cfg.Compression)
	}
	return &BookWriter{cfg: cfg}, nil
}

// WriteTo writes the database: header, record list, Record 0, text records,
// images, the optional navigation record, FDST, FLIS, FCIS and EOF.
func (w *BookWriter) WriteTo(out io.Writer) (int64, error) {
	cfg := w.cfg

	var compressor Compressor = NoCompression{}
	if cfg.Compression == CompressionPalmDoc {
		compressor = PalmDocCompressor{}
	}
	textRecords := SplitTextRecords(cfg.HTML, compressor)
	textLen := uint32(len(cfg.HTML))

	next := 1 + len(textRecords)
	firstImage := noIndex
	if len(cfg.ImageRecords) > 0 {
		firstImage = uint32(next)
	}
	next += len(cfg.ImageRecords)
	if len(cfg.NCXRecord) > 0 {
		next++
	}
	fdstIndex := uint32(next)
	flisIndex := fdstIndex + 1
	fcisIndex := fdstIndex + 2
	total := fdstIndex + 4 // EOF is last

	exth := EXTHFromMetadata(cfg.Metadata, 0, total)
	if cfg.CoverIndex != nil {
		exth.AddUint32Record(EXTHCoverOffset, uint32(*cfg.CoverIndex))
	}

	fdst := NewFDSTSingleFlow(textLen)
	header, err := NewMOBIHeader(MOBIHeaderConfig{
		Compression:       cfg.Compression,
		TextLength:        textLen,
		TextRecordCount:   uint16(len(textRecords)),
		Language:          cfg.Metadata.Language,
		UniqueID:          cfg.UniqueID,
		FirstImageIndex:   firstImage,
		FirstNonBookIndex: uint32(1 + len(textRecords)),
		FCISRecordNumber:  fcisIndex,
		FLISRecordNumber:  flisIndex,
		FDSTIndex:         fdstIndex,
		FDSTFlowCount:     fdst.FlowCount(),
	})
	if err != nil {
		return 0, err
	}

	records := make([][]byte, 0, total)
	records = append(records, header.Record0Bytes(exth.Bytes(), cfg.Title))
	records = append(records, textRecords...)
	records = append(records, cfg.ImageRecords...)
	if len(cfg.NCXRecord) > 0 {
		records = append(records, cfg.NCXRecord)
	}
	records = append(records, fdst.Bytes(), FLISRecord(), FCISRecord(textLen), EOFRecord())

	sizes := make([]int, len(records))
	for i, r := range records {
		sizes[i] = len(r)
	}
	pdb, err := NewPDB(cfg.Title, sizes, cfg.CreationTime, cfg.CreationTime)
	if err != nil {
		return 0, err
	}
	hdr, err := pdb.HeaderBytes()
	if err != nil {
		return 0, err
	}

	var written int64
	for i, chunk := range append([][]byte{hdr, pdb.RecordListBytes()}, records...) {
		n, err := io.Copy(out, bytes.NewReader(chunk))
		written += n
		if err != nil {
			return written, ebook.Wrap(ebook.KindIO, err, "%s", chunkLabel(i))
		}
	}
	return written, nil
}

func chunkLabel(i int) string {
	switch i {
	case 0:
		return "write PDB header"
	case 1:
		return "write record list"
	}
	return fmt.Sprintf("write record %d", i-2)
}

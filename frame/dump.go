package frame

import (
	"errors"
	"fmt"
	"io"

	"github.com/PuffoTrillionarioGonePublic/erldb/types"
)

// Dump is a fully read dump file.
type Dump struct {
	Header  *Header
	Rows    []types.Row
	Trailer *Trailer
}

// ReadDump reads a whole dump and checks frame order and the trailer count.
func ReadDump(r io.Reader) (*Dump, error) {
	d := NewDecoder(r)
	out := &Dump{}

	for {
		f, err := d.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if out.Trailer != nil {
			return nil, &FrameError{Kind: FrameErrorSequence, Msg: "frame after trailer"}
		}

		switch f := f.(type) {
		case *Header:
			if out.Header != nil {
				return nil, &FrameError{Kind: FrameErrorSequence, Msg: "duplicate header"}
			}
			out.Header = f
		case *RowFrame:
			if out.Header == nil {
				return nil, &FrameError{Kind: FrameErrorSequence, Msg: "row before header"}
			}
			if f.Seq != int64(len(out.Rows)) {
				return nil, &FrameError{Kind: FrameErrorSequence, Msg: fmt.Sprintf("row seq %d, want %d", f.Seq, len(out.Rows))}
			}
			row, err := f.Row()
			if err != nil {
				return nil, err
			}
			out.Rows = append(out.Rows, row)
		case *Trailer:
			if out.Header == nil {
				return nil, &FrameError{Kind: FrameErrorSequence, Msg: "trailer before header"}
			}
			if f.Rows != int64(len(out.Rows)) {
				return nil, &FrameError{Kind: FrameErrorSequence, Msg: fmt.Sprintf("trailer counts %d rows, read %d", f.Rows, len(out.Rows))}
			}
			out.Trailer = f
		}
	}

	if out.Header == nil {
		return nil, &FrameError{Kind: FrameErrorSequence, Msg: "missing header"}
	}
	if out.Trailer == nil {
		return nil, &FrameError{Kind: FrameErrorPartial, Msg: "missing trailer"}
	}
	return out, nil
}

// WriteDump writes a complete dump: header, rows, trailer.
func WriteDump(w io.Writer, h Header, rows []types.Row, changes int64) error {
	enc := NewEncoder(w)
	if err := enc.WriteHeader(h); err != nil {
		return err
	}
	for _, row := range rows {
		if err := enc.WriteRow(row); err != nil {
			return err
		}
	}
	return enc.WriteTrailer(changes)
}

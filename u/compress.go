package u

import (
	"bytes"
	"io"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
)

func getErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func BrCompressData(d []byte, level int) ([]byte, error) {
	var dst bytes.Buffer
	w := brotli.NewWriterLevel(&dst, level)
	_, err := w.Write(d)
	err2 := w.Close()
	if err = getErr(err, err2); err != nil {
		return nil, err
	}
	return dst.Bytes(), nil
}

func BrCompressDataDefault(d []byte) ([]byte, error) {
	return BrCompressData(d, brotli.DefaultCompression)
}

func BrDecompressData(d []byte) ([]byte, error) {
	r := brotli.NewReader(bytes.NewReader(d))
	return io.ReadAll(r)
}

func zstdNewWriter(dst io.Writer) (*zstd.Encoder, error) {
	// zstd.SpeedBestCompression is much slower and not much better
	// for spreadsheet-sized inputs
	return zstd.NewWriter(dst, zstd.WithEncoderLevel(zstd.SpeedDefault))
}

func ZstdCompressData(d []byte) ([]byte, error) {
	var dst bytes.Buffer
	w, err := zstdNewWriter(&dst)
	if err != nil {
		return nil, err
	}
	_, err = w.Write(d)
	err2 := w.Close()
	if err = getErr(err, err2); err != nil {
		return nil, err
	}
	return dst.Bytes(), nil
}

func ZstdDecompressData(d []byte) ([]byte, error) {
	zr, err := zstd.NewReader(bytes.NewReader(d))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}

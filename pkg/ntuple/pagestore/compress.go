package pagestore

import (
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/ajitpratap0/quasar/pkg/errors"
)

var (
	zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
	zstdDecoder, _ = zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
)

// compressPage compresses a sealed page. If the codec gains nothing the page
// is stored raw and the returned codec is CompressionNone.
func compressPage(codec string, data []byte) ([]byte, string, error) {
	switch codec {
	case "", CompressionNone:
		return data, CompressionNone, nil
	case CompressionZstd:
		out := zstdEncoder.EncodeAll(data, make([]byte, 0, len(data)))
		if len(out) >= len(data) {
			return data, CompressionNone, nil
		}
		return out, CompressionZstd, nil
	case CompressionLZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, buf, nil)
		if err != nil {
			return nil, "", errors.Wrap(err, errors.ErrorTypeIO, "lz4 compress page")
		}
		if n == 0 || n >= len(data) {
			return data, CompressionNone, nil
		}
		return buf[:n], CompressionLZ4, nil
	default:
		return nil, "", errors.Newf(errors.ErrorTypeConfig, "unknown compression codec %q", codec)
	}
}

// decompressPage restores a page to its packed size.
func decompressPage(codec string, data []byte, packedSize int) ([]byte, error) {
	switch codec {
	case "", CompressionNone:
		return data, nil
	case CompressionZstd:
		out, err := zstdDecoder.DecodeAll(data, make([]byte, 0, packedSize))
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeIO, "zstd decompress page")
		}
		return out, nil
	case CompressionLZ4:
		out := make([]byte, packedSize)
		n, err := lz4.UncompressBlock(data, out)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeIO, "lz4 decompress page")
		}
		return out[:n], nil
	default:
		return nil, errors.Newf(errors.ErrorTypeIO, "unknown page codec %q", codec)
	}
}

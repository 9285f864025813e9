package ssd

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// CompressionType defines the compression algorithm used for blocks.
type CompressionType uint8

const (
	// CompressionNone indicates no compression.
	CompressionNone CompressionType = 0
	// CompressionLZ4 indicates LZ4 block compression (fast, good for hot data).
	CompressionLZ4 CompressionType = 1
	// CompressionZSTD indicates ZSTD block compression (better ratio, good for cold data).
	CompressionZSTD CompressionType = 2
)

// ZSTD encoder/decoder pools for efficiency
var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func putZstdEncoder(enc *zstd.Encoder) {
	zstdEncoderPool.Put(enc)
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

func putZstdDecoder(dec *zstd.Decoder) {
	zstdDecoderPool.Put(dec)
}

// Block format:
// [Algo uint8][UncompressedSize uint32][CompressedSize uint32][Data...]
// If CompressedSize == 0, the data is stored uncompressed. The algo
// tag is recorded per block so a cache directory survives a config
// change of the compression type.
const blockHeaderSize = 9

var errBlockTooSmall = errors.New("ssd: block too small")

// compressBlock frames data as a block, compressing it with the given
// algorithm. Incompressible data (ratio > 0.9) is stored uncompressed.
func compressBlock(data []byte, compressionType CompressionType) ([]byte, error) {
	var compressed []byte
	var err error

	switch compressionType {
	case CompressionLZ4:
		compressed, err = compressBlockLZ4(data)
	case CompressionZSTD:
		compressed, err = compressBlockZSTD(data)
	case CompressionNone:
	default:
		return nil, fmt.Errorf("ssd: unknown compression type %d", compressionType)
	}

	if err != nil {
		return nil, err
	}

	// If compression doesn't help, store uncompressed.
	if len(compressed) == 0 || float64(len(compressed)) > float64(len(data))*0.9 {
		result := make([]byte, blockHeaderSize+len(data))
		result[0] = byte(compressionType)
		binary.LittleEndian.PutUint32(result[1:], uint32(len(data)))
		binary.LittleEndian.PutUint32(result[5:], 0) // 0 = uncompressed
		copy(result[blockHeaderSize:], data)
		return result, nil
	}

	result := make([]byte, blockHeaderSize+len(compressed))
	result[0] = byte(compressionType)
	binary.LittleEndian.PutUint32(result[1:], uint32(len(data)))
	binary.LittleEndian.PutUint32(result[5:], uint32(len(compressed)))
	copy(result[blockHeaderSize:], compressed)
	return result, nil
}

func compressBlockLZ4(data []byte) ([]byte, error) {
	maxCompressedSize := lz4.CompressBlockBound(len(data))
	compressed := make([]byte, maxCompressedSize)

	n, err := lz4.CompressBlock(data, compressed, nil)
	if err != nil {
		return nil, err
	}

	if n == 0 {
		return nil, nil // Incompressible
	}

	return compressed[:n], nil
}

func compressBlockZSTD(data []byte) ([]byte, error) {
	enc := getZstdEncoder()
	defer putZstdEncoder(enc)

	return enc.EncodeAll(data, nil), nil
}

// decompressBlock unframes a block written by compressBlock. The
// algorithm is read from the block's own header.
func decompressBlock(data []byte) ([]byte, error) {
	if len(data) < blockHeaderSize {
		return nil, errBlockTooSmall
	}

	algo := CompressionType(data[0])
	uncompressedSize := binary.LittleEndian.Uint32(data[1:])
	compressedSize := binary.LittleEndian.Uint32(data[5:])

	if compressedSize == 0 {
		if uint64(len(data)) < uint64(blockHeaderSize)+uint64(uncompressedSize) {
			return nil, errBlockTooSmall
		}
		return data[blockHeaderSize : blockHeaderSize+uncompressedSize], nil
	}

	if uint64(len(data)) < uint64(blockHeaderSize)+uint64(compressedSize) {
		return nil, errBlockTooSmall
	}

	compressedData := data[blockHeaderSize : blockHeaderSize+compressedSize]
	result := make([]byte, uncompressedSize)

	switch algo {
	case CompressionLZ4:
		n, err := lz4.UncompressBlock(compressedData, result)
		if err != nil {
			return nil, err
		}
		if uint32(n) != uncompressedSize {
			return nil, fmt.Errorf("ssd: decompressed %d bytes, expected %d", n, uncompressedSize)
		}
		return result, nil
	case CompressionZSTD:
		dec := getZstdDecoder()
		defer putZstdDecoder(dec)
		return dec.DecodeAll(compressedData, result[:0])
	default:
		return nil, fmt.Errorf("ssd: unknown compression type %d", algo)
	}
}

package db

import (
	"encoding/binary"

	"go.trai.ch/anvil/internal/core/domain"
	"go.trai.ch/zerr"
)

// Result records serialise as:
//
//	value_len u32, value_bytes,
//	built_iter u64, checked_iter u64,
//	declared_dep_count u32, (key_len u32, key_bytes)*,
//	discovered_dep_count u32, (key_len u32, key_bytes)*
//
// all little-endian.

var errShortRecord = zerr.New("truncated result record")

func encodeResult(result domain.Result) []byte {
	size := 4 + len(result.Value) + 8 + 8 + 4 + 4
	for _, key := range result.Declared {
		size += 4 + len(key)
	}
	for _, key := range result.Discovered {
		size += 4 + len(key)
	}

	buf := make([]byte, 0, size)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(result.Value)))
	buf = append(buf, result.Value...)
	buf = binary.LittleEndian.AppendUint64(buf, result.BuiltAt)
	buf = binary.LittleEndian.AppendUint64(buf, result.CheckedAt)
	buf = appendKeys(buf, result.Declared)
	buf = appendKeys(buf, result.Discovered)
	return buf
}

func appendKeys(buf []byte, keys []domain.Key) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(keys)))
	for _, key := range keys {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(key)))
		buf = append(buf, key...)
	}
	return buf
}

func decodeResult(data []byte) (domain.Result, error) {
	var result domain.Result

	value, rest, err := readBytes(data)
	if err != nil {
		return result, err
	}
	if len(rest) < 16 {
		return result, errShortRecord
	}
	result.Value = value
	result.BuiltAt = binary.LittleEndian.Uint64(rest)
	result.CheckedAt = binary.LittleEndian.Uint64(rest[8:])
	rest = rest[16:]

	result.Declared, rest, err = readKeys(rest)
	if err != nil {
		return result, err
	}
	result.Discovered, rest, err = readKeys(rest)
	if err != nil {
		return result, err
	}
	if len(rest) != 0 {
		return result, zerr.New("trailing bytes in result record")
	}
	return result, nil
}

func readBytes(data []byte) ([]byte, []byte, error) {
	if len(data) < 4 {
		return nil, nil, errShortRecord
	}
	n := binary.LittleEndian.Uint32(data)
	data = data[4:]
	if uint32(len(data)) < n {
		return nil, nil, errShortRecord
	}
	if n == 0 {
		return nil, data, nil
	}
	out := make([]byte, n)
	copy(out, data[:n])
	return out, data[n:], nil
}

func readKeys(data []byte) ([]domain.Key, []byte, error) {
	if len(data) < 4 {
		return nil, nil, errShortRecord
	}
	count := binary.LittleEndian.Uint32(data)
	data = data[4:]

	var keys []domain.Key
	for i := uint32(0); i < count; i++ {
		raw, rest, err := readBytes(data)
		if err != nil {
			return nil, nil, err
		}
		keys = append(keys, domain.Key(raw))
		data = rest
	}
	return keys, data, nil
}

package stores

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const deviceRecordVersion1 = 1

var (
	ErrDeviceBackend       = errors.New("device store backend unavailable")
	ErrDeviceRecordInvalid = errors.New("invalid device record")
)

type deviceRecord struct {
	Fingerprint string
	UpdatedAt   int64
}

// DeviceStore persists per-principal device-fingerprint blobs in Redis.
// Fingerprints have no TTL: a device identity outlives any one attempt.
type DeviceStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewDeviceStore(redisClient redis.UniversalClient, prefix string) *DeviceStore {
	if prefix == "" {
		prefix = "lsd"
	}
	return &DeviceStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *DeviceStore) key(principal string) string {
	return s.prefix + ":" + principal
}

// Load returns the stored fingerprint, or an empty blob and no error when
// the principal has none.
func (s *DeviceStore) Load(ctx context.Context, principal string) (string, error) {
	data, err := s.redis.Get(ctx, s.key(principal)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("%w: %v", ErrDeviceBackend, err)
	}

	record, err := decodeDeviceRecord(data)
	if err != nil {
		return "", err
	}
	return record.Fingerprint, nil
}

// Save stores the fingerprint, stamping the write time.
func (s *DeviceStore) Save(ctx context.Context, principal, blob string) error {
	encoded, err := encodeDeviceRecord(&deviceRecord{
		Fingerprint: blob,
		UpdatedAt:   time.Now().Unix(),
	})
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(principal), encoded, 0).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceBackend, err)
	}
	return nil
}

func encodeDeviceRecord(record *deviceRecord) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(deviceRecordVersion1)

	if err := binary.Write(&buf, binary.BigEndian, record.UpdatedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, uint32(len(record.Fingerprint))); err != nil {
		return nil, err
	}
	buf.WriteString(record.Fingerprint)

	return buf.Bytes(), nil
}

func decodeDeviceRecord(data []byte) (*deviceRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceRecordInvalid, err)
	}
	if version != deviceRecordVersion1 {
		return nil, fmt.Errorf("%w: unknown version %d", ErrDeviceRecordInvalid, version)
	}

	record := &deviceRecord{}
	if err := binary.Read(reader, binary.BigEndian, &record.UpdatedAt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceRecordInvalid, err)
	}

	var blobLen uint32
	if err := binary.Read(reader, binary.BigEndian, &blobLen); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceRecordInvalid, err)
	}
	blob := make([]byte, blobLen)
	if _, err := io.ReadFull(reader, blob); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceRecordInvalid, err)
	}
	record.Fingerprint = string(blob)

	return record, nil
}

package queue

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"

	"go-boxblur/pkg/common"
)

// Pixel buffers dominate message size, so they are zstd-compressed before
// the envelope is msgpack-encoded. EncodeAll/DecodeAll are safe for
// concurrent use on a shared encoder/decoder.
var (
	zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	zstdDecoder, _ = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
)

func compressTask(t *common.ImageTask) *common.ImageTask {
	if t == nil {
		return nil
	}
	c := *t
	c.Pix = zstdEncoder.EncodeAll(t.Pix, make([]byte, 0, len(t.Pix)/4))
	return &c
}

func decompressTask(t *common.ImageTask) error {
	if t == nil {
		return nil
	}
	// failed results carry no pixels and possibly bad geometry
	size := max(t.Width*t.Height*t.Channels, 0)
	pix, err := zstdDecoder.DecodeAll(t.Pix, make([]byte, 0, size))
	if err != nil {
		return fmt.Errorf("failed to decompress pixels: %w", err)
	}
	t.Pix = pix
	return nil
}

func marshalJob(job *common.JobMessage) ([]byte, error) {
	wire := common.JobMessage{Type: job.Type, Task: compressTask(job.Task)}
	b, err := msgpack.Marshal(&wire)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job: %w", err)
	}
	return b, nil
}

func unmarshalJob(b []byte) (*common.JobMessage, error) {
	var job common.JobMessage
	if err := msgpack.Unmarshal(b, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	if err := decompressTask(job.Task); err != nil {
		return nil, err
	}
	return &job, nil
}

func marshalResult(res *common.ResultTask) ([]byte, error) {
	wire := *res
	wire.ImageTask = *compressTask(&res.ImageTask)
	b, err := msgpack.Marshal(&wire)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return b, nil
}

func unmarshalResult(b []byte) (*common.ResultTask, error) {
	var res common.ResultTask
	if err := msgpack.Unmarshal(b, &res); err != nil {
		return nil, fmt.Errorf("failed to unmarshal result: %w", err)
	}
	if err := decompressTask(&res.ImageTask); err != nil {
		return nil, err
	}
	return &res, nil
}

// Package bridge pulls raw trains off the instrument's ZeroMQ stream and
// decodes the CBOR payloads into the pipeline's input format.
package bridge

import (
	"context"

	"github.com/pebbe/zmq4"

	"github.com/beamline-data/trainproc/internal/train/model"
)

// Stream connects a PULL socket to endpoint and returns a channel of
// decoded trains. The channel is closed when ctx is cancelled. Messages
// that fail to decode are logged and skipped.
func Stream(ctx context.Context, endpoint string, queue int) (<-chan *model.RawTrain, error) {
	socket, err := zmq4.NewSocket(zmq4.PULL)
	if err != nil {
		return nil, err
	}
	if err := socket.Connect(endpoint); err != nil {
		_ = socket.Close()
		return nil, err
	}
	if queue < 1 {
		queue = 1
	}
	opsf("pulling trains from %s", endpoint)

	out := make(chan *model.RawTrain, queue)
	go func() {
		defer close(out)
		defer socket.Close()

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			msg, err := socket.RecvBytes(0)
			if err != nil {
				opsf("recv error: %v", err)
				continue
			}

			raw, err := DecodeTrain(msg)
			if err != nil {
				opsf("skipping message: %v", err)
				continue
			}
			tracef("received train %d (%d devices, %d bytes)", raw.TrainID, len(raw.Devices), len(msg))

			select {
			case <-ctx.Done():
				return
			case out <- raw:
			}
		}
	}()

	return out, nil
}

package grpcclient

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/example/glaucoscan/internal/classifier"
	"github.com/example/glaucoscan/internal/logging"
)

// PredictMethod is the full gRPC method name served by the inference service.
// The request is a google.protobuf.BytesValue holding a 256x256 PNG and the
// reply a google.protobuf.ListValue of per-category scores.
const PredictMethod = "/glaucoscan.v1.Classifier/Predict"

// DialClassifier returns a classifier backed by a remote inference service.
// It waits until the connection is ready or ctx gives up after five seconds.
func DialClassifier(ctx context.Context, addr string, logger *zap.Logger, opts ...grpc.DialOption) (*RemoteModel, *grpc.ClientConn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err == nil {
		err = waitReady(dialCtx, conn)
		if err != nil {
			conn.Close()
		}
	}
	if err != nil {
		wrapped := logging.NewOperationError("grpcclient.dial_classifier", "", err)
		logger.Error("failed to dial inference service", zap.Error(wrapped), zap.String("addr", addr))
		return nil, nil, wrapped
	}
	return NewRemoteModel(conn, logger), conn, nil
}

func waitReady(ctx context.Context, conn *grpc.ClientConn) error {
	conn.Connect()
	for state := conn.GetState(); state != connectivity.Ready; state = conn.GetState() {
		if !conn.WaitForStateChange(ctx, state) {
			return fmt.Errorf("connection not ready (last state %s): %w", state, ctx.Err())
		}
	}
	return nil
}

// RemoteModel implements classifier.Classifier over a gRPC connection. The
// image is resized locally and scored by the remote model.
type RemoteModel struct {
	conn   grpc.ClientConnInterface
	logger *zap.Logger
}

// NewRemoteModel wraps an established connection.
func NewRemoteModel(conn grpc.ClientConnInterface, logger *zap.Logger) *RemoteModel {
	return &RemoteModel{conn: conn, logger: logger.Named("remote_model")}
}

// Classify resizes the image locally and asks the remote model for scores.
func (m *RemoteModel) Classify(ctx context.Context, imagePath string) (int, error) {
	img, err := classifier.LoadResized(imagePath)
	if err != nil {
		return 0, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return 0, fmt.Errorf("%w: encode image: %v", classifier.ErrInference, err)
	}
	scores, err := m.predict(ctx, buf.Bytes())
	if err != nil {
		return 0, err
	}
	return classifier.Argmax(scores)
}

func (m *RemoteModel) predict(ctx context.Context, payload []byte) ([]float32, error) {
	reply := &structpb.ListValue{}
	if err := m.conn.Invoke(ctx, PredictMethod, wrapperspb.Bytes(payload), reply); err != nil {
		wrapped := logging.NewOperationError("grpcclient.predict", "", err)
		m.logger.Error("inference call failed", zap.Error(wrapped))
		return nil, fmt.Errorf("%w: %v", classifier.ErrInference, wrapped)
	}

	scores := make([]float32, 0, len(reply.GetValues()))
	for i, v := range reply.GetValues() {
		n, ok := v.GetKind().(*structpb.Value_NumberValue)
		if !ok {
			return nil, fmt.Errorf("%w: score %d is not a number", classifier.ErrInference, i)
		}
		scores = append(scores, float32(n.NumberValue))
	}
	return scores, nil
}

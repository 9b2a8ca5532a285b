package grpc_control

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"signal-streamer/src/logger"
	"signal-streamer/src/models"
	"signal-streamer/src/stream"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

type fakeController struct {
	statuses []models.MPipelineStatus
	bars     []models.MBar
	stopped  []string
	query    [2]string
}

func (f *fakeController) Snapshot() []models.MPipelineStatus { return f.statuses }

func (f *fakeController) StopPipeline(symbol, reason string) error {
	for _, st := range f.statuses {
		if st.Symbol == symbol {
			f.stopped = append(f.stopped, symbol+":"+reason)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", stream.ErrNoPipeline, symbol)
}

func (f *fakeController) History(ctx context.Context, symbol, interval string) []models.MBar {
	f.query = [2]string{symbol, interval}
	return f.bars
}

func dialControl(t *testing.T, ctrl *fakeController) *ControlClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := NewGrpcServer("127.0.0.1", 0, NewControlService(ctrl, logger.NewNopLogger()), logger.NewNopLogger())
	go srv.Serve(lis)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Stop(ctx)
	})

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return NewControlClient(conn)
}

func request(t *testing.T, fields map[string]interface{}) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(fields)
	require.NoError(t, err)
	return s
}

func TestListPipelines(t *testing.T) {
	started := time.Date(2024, 6, 12, 16, 0, 0, 0, time.UTC)
	ctrl := &fakeController{statuses: []models.MPipelineStatus{
		{Symbol: "ES", Subscribers: 2, Phase: models.PhaseStreaming, Position: models.PositionLong, StopValue: 4498.5, BarsPublished: 7, StartedAt: started},
	}}
	client := dialControl(t, ctrl)

	resp, err := client.ListPipelines(context.Background())
	require.NoError(t, err)

	list := resp.GetFields()["pipelines"].GetListValue().GetValues()
	require.Len(t, list, 1)
	p := list[0].GetStructValue().GetFields()
	assert.Equal(t, "ES", p["symbol"].GetStringValue())
	assert.Equal(t, float64(2), p["subscribers"].GetNumberValue())
	assert.Equal(t, "LONG", p["position"].GetStringValue())
	assert.Equal(t, 4498.5, p["stopValue"].GetNumberValue())
}

func TestGetHistory(t *testing.T) {
	ctrl := &fakeController{bars: []models.MBar{
		{Symbol: "TSLA", Dataset: "SIMULATION", Timestamp: 1718208000, Close: 150.1, Volume: 900},
	}}
	client := dialControl(t, ctrl)

	resp, err := client.GetHistory(context.Background(), request(t, map[string]interface{}{"symbol": "tsla", "interval": "5m"}))
	require.NoError(t, err)
	bars := resp.GetFields()["bars"].GetListValue().GetValues()
	require.Len(t, bars, 1)
	assert.Equal(t, 150.1, bars[0].GetStructValue().GetFields()["close"].GetNumberValue())
	assert.Equal(t, [2]string{"TSLA", "5m"}, ctrl.query)
}

func TestGetHistoryRequiresSymbol(t *testing.T) {
	client := dialControl(t, &fakeController{})
	_, err := client.GetHistory(context.Background(), request(t, map[string]interface{}{}))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestStopPipeline(t *testing.T) {
	ctrl := &fakeController{statuses: []models.MPipelineStatus{{Symbol: "NQ"}}}
	client := dialControl(t, ctrl)

	resp, err := client.StopPipeline(context.Background(), request(t, map[string]interface{}{"symbol": "nq", "reason": "roll"}))
	require.NoError(t, err)
	assert.True(t, resp.GetFields()["success"].GetBoolValue())
	assert.Equal(t, []string{"NQ:roll"}, ctrl.stopped)

	_, err = client.StopPipeline(context.Background(), request(t, map[string]interface{}{"symbol": "ES"}))
	assert.Equal(t, codes.NotFound, status.Code(err))
}

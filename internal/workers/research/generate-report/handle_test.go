package generatereport

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"meeting-intel/internal/common/errors"
	"meeting-intel/internal/common/logger"

	"github.com/camunda/zeebe/clients/go/v8/pkg/commands"
	"github.com/camunda/zeebe/clients/go/v8/pkg/pb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
)

// ==========================
// Fake Gateway
// ==========================

// fakeGateway records job commands. Unimplemented gateway calls panic.
type fakeGateway struct {
	pb.GatewayClient

	mu          sync.Mutex
	completeErr error
	completed   []*pb.CompleteJobRequest
	failed      []*pb.FailJobRequest
	thrown      []*pb.ThrowErrorRequest
}

func (g *fakeGateway) CompleteJob(ctx context.Context, in *pb.CompleteJobRequest, _ ...grpc.CallOption) (*pb.CompleteJobResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if g.completeErr != nil {
		return nil, g.completeErr
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.completed = append(g.completed, in)
	return &pb.CompleteJobResponse{}, nil
}

func (g *fakeGateway) FailJob(ctx context.Context, in *pb.FailJobRequest, _ ...grpc.CallOption) (*pb.FailJobResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failed = append(g.failed, in)
	return &pb.FailJobResponse{}, nil
}

func (g *fakeGateway) ThrowError(ctx context.Context, in *pb.ThrowErrorRequest, _ ...grpc.CallOption) (*pb.ThrowErrorResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.thrown = append(g.thrown, in)
	return &pb.ThrowErrorResponse{}, nil
}

func noRetry(context.Context, error) bool { return false }

type fakeJobClient struct {
	gateway *fakeGateway
}

func (c fakeJobClient) NewCompleteJobCommand() commands.CompleteJobCommandStep1 {
	return commands.NewCompleteJobCommand(c.gateway, noRetry)
}

func (c fakeJobClient) NewFailJobCommand() commands.FailJobCommandStep1 {
	return commands.NewFailJobCommand(c.gateway, noRetry)
}

func (c fakeJobClient) NewThrowErrorCommand() commands.ThrowErrorCommandStep1 {
	return commands.NewThrowErrorCommand(c.gateway, noRetry)
}

func validJobVariables() map[string]interface{} {
	return map[string]interface{}{
		"company":   "Acme",
		"attendees": []interface{}{map[string]interface{}{"name": "Jane Doe"}},
	}
}

func createHandlerWithTimeout(t *testing.T, gen ReportGenerator, timeout time.Duration) *Handler {
	t.Helper()
	h, err := NewHandler(HandlerOptions{
		CustomConfig: &Config{Enabled: true, MaxJobsActive: 1, Timeout: timeout},
		Generator:    gen,
		Logger:       logger.NewTestLogger(t),
	})
	require.NoError(t, err)
	return h
}

// ==========================
// Handle Tests
// ==========================

func TestHandle_CompletesJob(t *testing.T) {
	gen := &MockGenerator{}
	gen.On("GenerateReport", mock.Anything, mock.Anything).Return(structuredReport(), nil)
	gw := &fakeGateway{}

	createTestHandler(t, gen).Handle(fakeJobClient{gw}, createMockJob(42, validJobVariables()))

	require.Len(t, gw.completed, 1)
	assert.Equal(t, int64(42), gw.completed[0].JobKey)
	assert.Contains(t, gw.completed[0].Variables, `"reportId":"5f1c7a52-2d43-4a57-9c0e-0c1f6a0d9b11"`)
	assert.Empty(t, gw.failed)
	assert.Empty(t, gw.thrown)
}

func TestHandle_CompletesAfterJobTimeoutElapsed(t *testing.T) {
	gen := &MockGenerator{}
	gen.On("GenerateReport", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return(structuredReport(), nil)
	gw := &fakeGateway{}

	createHandlerWithTimeout(t, gen, 20*time.Millisecond).
		Handle(fakeJobClient{gw}, createMockJob(7, validJobVariables()))

	require.Len(t, gw.completed, 1)
	assert.Equal(t, int64(7), gw.completed[0].JobKey)
	assert.Empty(t, gw.failed)
}

func TestHandle_CompleteFailureFailsJob(t *testing.T) {
	gen := &MockGenerator{}
	gen.On("GenerateReport", mock.Anything, mock.Anything).Return(structuredReport(), nil)
	gw := &fakeGateway{completeErr: fmt.Errorf("gateway unavailable")}

	createTestHandler(t, gen).Handle(fakeJobClient{gw}, createMockJob(9, validJobVariables()))

	assert.Empty(t, gw.completed)
	require.Len(t, gw.failed, 1)
	assert.Equal(t, int64(9), gw.failed[0].JobKey)
	assert.Equal(t, int32(2), gw.failed[0].Retries)
	assert.Contains(t, gw.failed[0].ErrorMessage, "REPORT_GENERATION_FAILED")
	assert.Contains(t, gw.failed[0].Variables, "complete job: gateway unavailable")
}

func TestHandle_Failures(t *testing.T) {
	tests := []struct {
		name        string
		variables   map[string]interface{}
		genErr      error
		wantThrown  string
		wantRetries int32
	}{
		{
			name:       "invalid request raises a BPMN error",
			variables:  map[string]interface{}{"company": "Acme"},
			wantThrown: "INVALID_RESEARCH_REQUEST",
		},
		{
			name:        "model timeout retries once",
			variables:   validJobVariables(),
			genErr:      errors.NewLLMTimeoutError(context.DeadlineExceeded),
			wantRetries: 1,
		},
		{
			name:       "missing model configuration is terminal",
			variables:  validJobVariables(),
			genErr:     errors.NewLLMNotConfiguredError(),
			wantThrown: "LLM_NOT_CONFIGURED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &MockGenerator{}
			if tt.genErr != nil {
				gen.On("GenerateReport", mock.Anything, mock.Anything).Return(nil, tt.genErr)
			}
			gw := &fakeGateway{}

			createTestHandler(t, gen).Handle(fakeJobClient{gw}, createMockJob(3, tt.variables))

			assert.Empty(t, gw.completed)
			if tt.genErr == nil {
				gen.AssertNotCalled(t, "GenerateReport", mock.Anything, mock.Anything)
			}
			if tt.wantThrown != "" {
				require.Len(t, gw.thrown, 1)
				assert.Equal(t, tt.wantThrown, gw.thrown[0].ErrorCode)
				assert.Empty(t, gw.failed)
				return
			}
			require.Len(t, gw.failed, 1)
			assert.Equal(t, tt.wantRetries, gw.failed[0].Retries)
			assert.Empty(t, gw.thrown)
		})
	}
}

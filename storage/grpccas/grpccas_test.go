package grpccas

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"xdao.co/titlegate/storage"
	"xdao.co/titlegate/storage/localfs"
	"xdao.co/titlegate/storage/testkit"
)

func newBufconnClient(t *testing.T, backend storage.CAS) *Client {
	t.Helper()
	lis := bufconn.Listen(1024 * 1024)
	srv := grpc.NewServer()
	RegisterCASServer(srv, &Server{CAS: backend})

	go func() {
		_ = srv.Serve(lis)
	}()
	t.Cleanup(srv.Stop)

	dialer := func(ctx context.Context, s string) (net.Conn, error) { return lis.DialContext(ctx) }
	cc, err := grpc.NewClient(
		"passthrough:///bufnet",
		grpc.WithContextDialer(dialer),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() { _ = cc.Close() })

	return &Client{cc: cc, client: NewCASClient(cc), Timeout: 2 * time.Second}
}

func TestGRPCCAS_Conformance(t *testing.T) {
	testkit.RunCASConformance(t, func(t *testing.T) storage.CAS {
		cas, err := localfs.New(t.TempDir())
		if err != nil {
			t.Fatalf("localfs.New: %v", err)
		}
		return newBufconnClient(t, cas)
	})
}

func TestGRPCCAS_PinReachesBackend(t *testing.T) {
	backend := testkit.NewMemCAS()
	client := newBufconnClient(t, backend)
	ctx := context.Background()

	id, err := client.Put(ctx, []byte("hello grpccas"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := client.Pin(ctx, id); err != nil {
		t.Fatalf("Pin: %v", err)
	}
	if !backend.Pinned(id) {
		t.Fatalf("expected backend pin")
	}
}

func TestMapRPC(t *testing.T) {
	cases := []struct {
		code codes.Code
		want error
	}{
		{codes.NotFound, storage.ErrNotFound},
		{codes.InvalidArgument, storage.ErrInvalidCID},
		{codes.DataLoss, storage.ErrCIDMismatch},
		{codes.AlreadyExists, storage.ErrImmutable},
		{codes.Unavailable, storage.ErrUnavailable},
		{codes.DeadlineExceeded, storage.ErrUnavailable},
	}
	for _, tc := range cases {
		got := mapRPC(status.Error(tc.code, "x"))
		if !errors.Is(got, tc.want) {
			t.Fatalf("mapRPC(%s) = %v, want %v", tc.code, got, tc.want)
		}
	}
}

func TestDialUnreachable(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	addr := lis.Addr().String()
	_ = lis.Close()

	_, err = Dial(addr, DialOptions{Timeout: 300 * time.Millisecond})
	if !storage.IsUnavailable(err) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

// Package server exposes an OurSQL database over gRPC.
//
// What: a minimal Exec/Query service, wired by hand against grpc.Server
// (no protobuf/.proto file) using a JSON codec instead of protobuf wire
// encoding, matching tinySQL's own server wiring.
// How: one *storage.Database, one *sql.Executor, one *grpc.Server. Every
// call that arrives without a session id is stamped with a fresh one,
// which verbose logging prints beside the statement; there is no
// session-scoped state beyond that (the engine itself is stateless
// between calls).
// Why: the REPL is an out-of-scope external collaborator of this module;
// a network front end gives the engine a second, machine-readable way to
// be driven without adding any SQL semantics of its own.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"

	oursql "github.com/tis-abe-akira/our-sql/sql"
	"github.com/tis-abe-akira/our-sql/storage"
)

// ExecRequest is the wire shape of an Exec call.
type ExecRequest struct {
	SessionID string `json:"session_id"`
	SQL       string `json:"sql"`
}

// ExecResponse is the wire shape of an Exec reply.
type ExecResponse struct {
	Success      bool   `json:"success"`
	Error        string `json:"error,omitempty"`
	RowsAffected int    `json:"rows_affected"`
	Duration     string `json:"duration"`
}

// QueryRequest is the wire shape of a Query call.
type QueryRequest struct {
	SessionID string `json:"session_id"`
	SQL       string `json:"sql"`
}

// QueryResponse is the wire shape of a Query reply.
type QueryResponse struct {
	Columns  []string `json:"columns"`
	Rows     [][]any  `json:"rows"`
	Error    string   `json:"error,omitempty"`
	Duration string   `json:"duration"`
}

// jsonCodec replaces grpc's default protobuf codec with plain JSON, since
// this service has no .proto-generated message types.
type jsonCodec struct{}

func (jsonCodec) Name() string                      { return "json" }
func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// OurSQLServer is the hand-written gRPC service interface: Exec runs a
// statement for its side effect, Query runs one and returns its rows.
type OurSQLServer interface {
	Exec(context.Context, *ExecRequest) (*ExecResponse, error)
	Query(context.Context, *QueryRequest) (*QueryResponse, error)
}

func registerOurSQLServer(s *grpc.Server, srv OurSQLServer) {
	s.RegisterService(&grpc.ServiceDesc{
		ServiceName: "oursql.OurSQL",
		HandlerType: (*OurSQLServer)(nil),
		Methods: []grpc.MethodDesc{
			{MethodName: "Exec", Handler: execHandler},
			{MethodName: "Query", Handler: queryHandler},
		},
		Streams:  []grpc.StreamDesc{},
		Metadata: "oursql",
	}, srv)
}

func execHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ExecRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(OurSQLServer).Exec(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/oursql.OurSQL/Exec"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(OurSQLServer).Exec(ctx, req.(*ExecRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func queryHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(QueryRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(OurSQLServer).Query(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/oursql.OurSQL/Query"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(OurSQLServer).Query(ctx, req.(*QueryRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// Server is the OurSQLServer implementation backing one database.
type Server struct {
	db       *storage.Database
	executor *oursql.Executor
	verbose  bool
}

// New wraps db as a gRPC-servable OurSQLServer.
func New(db *storage.Database, verbose bool) *Server {
	return &Server{db: db, executor: oursql.NewExecutor(db), verbose: verbose}
}

func (s *Server) logSession(sessionID, sqlText string) {
	if !s.verbose {
		return
	}
	log.Printf("session %s: %s", sessionID, sqlText)
}

// Exec runs req.SQL for its side effect (DDL, INSERT, UPDATE, DELETE).
func (s *Server) Exec(_ context.Context, req *ExecRequest) (*ExecResponse, error) {
	start := time.Now()
	s.logSession(req.SessionID, req.SQL)

	stmt, err := oursql.Parse(req.SQL)
	if err != nil {
		return &ExecResponse{Error: err.Error(), Duration: time.Since(start).String()}, nil
	}
	res, err := s.executor.Execute(stmt)
	if err != nil {
		return &ExecResponse{Error: err.Error(), Duration: time.Since(start).String()}, nil
	}
	return &ExecResponse{Success: true, RowsAffected: res.RowsAffected, Duration: time.Since(start).String()}, nil
}

// Query runs req.SQL and returns its result rows.
func (s *Server) Query(_ context.Context, req *QueryRequest) (*QueryResponse, error) {
	start := time.Now()
	s.logSession(req.SessionID, req.SQL)

	stmt, err := oursql.Parse(req.SQL)
	if err != nil {
		return &QueryResponse{Error: err.Error(), Duration: time.Since(start).String()}, nil
	}
	res, err := s.executor.Execute(stmt)
	if err != nil {
		return &QueryResponse{Error: err.Error(), Duration: time.Since(start).String()}, nil
	}

	rows := make([][]any, len(res.Rows))
	for i, row := range res.Rows {
		out := make([]any, len(row))
		for j, v := range row {
			if v.Type == storage.ColInt {
				out[j] = v.Int
			} else {
				out[j] = v.Text
			}
		}
		rows[i] = out
	}
	return &QueryResponse{Columns: res.Cols, Rows: rows, Duration: time.Since(start).String()}, nil
}

// NewSessionID mints a session identifier for a call.
func NewSessionID() string {
	return uuid.NewString()
}

// stampSessionID is a unary interceptor that mints a session id for any
// call arriving without one, so every Exec/Query is attributable to a
// session in logs regardless of whether the caller tracks one itself.
func stampSessionID(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	switch r := req.(type) {
	case *ExecRequest:
		if r.SessionID == "" {
			r.SessionID = NewSessionID()
		}
	case *QueryRequest:
		if r.SessionID == "" {
			r.SessionID = NewSessionID()
		}
	}
	return handler(ctx, req)
}

// Serve starts a gRPC listener at addr and blocks until it returns an
// error (including listener shutdown).
func Serve(addr string, db *storage.Database, verbose bool) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	gs := grpc.NewServer(grpc.UnaryInterceptor(stampSessionID))
	registerOurSQLServer(gs, New(db, verbose))
	log.Printf("oursql gRPC server listening on %s", addr)
	return gs.Serve(lis)
}

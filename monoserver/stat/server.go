// stat backend server for monodisk
package stat

import (
	"context"

	"github.com/rarydzu/monodisk/monodisk"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	ServiceName = "monodisk.Stat"
	StatMethod  = "/" + ServiceName + "/Stat"
)

// StatServer is the server API of the stat service
type StatServer interface {
	Stat(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

// Source reports disk usage
type Source interface {
	Stats() monodisk.Stats
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*StatServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Stat",
			Handler:    statHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "monodisk/stat",
}

func statHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StatServer).Stat(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: StatMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(StatServer).Stat(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// Register adds the stat service to s
func Register(s *grpc.Server, srv StatServer) {
	s.RegisterService(&ServiceDesc, srv)
}

type Server struct {
	name   string
	source Source
	log    *zap.SugaredLogger
}

// New is a constructor for Server
func New(name string, source Source, log *zap.SugaredLogger) *Server {
	return &Server{
		name:   name,
		source: source,
		log:    log,
	}
}

// Stat is a RPC for stat
func (s *Server) Stat(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if fs := in.GetFields()["fs"].GetStringValue(); fs != "" && fs != s.name {
		return nil, status.Errorf(codes.NotFound, "unknown filesystem %q", fs)
	}
	st := s.source.Stats()
	out, err := structpb.NewStruct(map[string]interface{}{
		"fs":         s.name,
		"blockSize":  st.BlockSize,
		"blocks":     st.Blocks,
		"dataBlocks": st.DataBlocks,
		"blocksFree": st.FreeBlocks,
		"files":      st.Files,
		"maxFiles":   st.MaxFiles,
	})
	if err != nil {
		s.log.Errorf("Stat(%s): %v", s.name, err)
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

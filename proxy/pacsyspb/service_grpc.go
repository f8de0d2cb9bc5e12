package pacsyspb

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func grpcUnimplemented(method string) error {
	return status.Errorf(codes.Unimplemented, "method %s not implemented", method)
}

// PacsysClient is the client API for the Pacsys service, in the shape
// protoc-gen-go-grpc would emit.
type PacsysClient interface {
	Read(ctx context.Context, in *ReadRequest, opts ...grpc.CallOption) (*ReadResponse, error)
	Set(ctx context.Context, in *SetRequest, opts ...grpc.CallOption) (*SetResponse, error)
	Alarms(ctx context.Context, in *AlarmsRequest, opts ...grpc.CallOption) (*AlarmsResponse, error)
	Subscribe(ctx context.Context, in *SubscribeRequest, opts ...grpc.CallOption) (Pacsys_SubscribeClient, error)
}

type pacsysClient struct {
	cc grpc.ClientConnInterface
}

func NewPacsysClient(cc grpc.ClientConnInterface) PacsysClient {
	return &pacsysClient{cc}
}

func (c *pacsysClient) Read(ctx context.Context, in *ReadRequest, opts ...grpc.CallOption) (*ReadResponse, error) {
	out := new(ReadResponse)
	if err := c.cc.Invoke(ctx, Pacsys_Read_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *pacsysClient) Set(ctx context.Context, in *SetRequest, opts ...grpc.CallOption) (*SetResponse, error) {
	out := new(SetResponse)
	if err := c.cc.Invoke(ctx, Pacsys_Set_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *pacsysClient) Alarms(ctx context.Context, in *AlarmsRequest, opts ...grpc.CallOption) (*AlarmsResponse, error) {
	out := new(AlarmsResponse)
	if err := c.cc.Invoke(ctx, Pacsys_Alarms_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *pacsysClient) Subscribe(ctx context.Context, in *SubscribeRequest, opts ...grpc.CallOption) (Pacsys_SubscribeClient, error) {
	stream, err := c.cc.NewStream(ctx, &Pacsys_ServiceDesc.Streams[0], Pacsys_Subscribe_FullMethodName, opts...)
	if err != nil {
		return nil, err
	}
	x := &pacsysSubscribeClient{stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

type Pacsys_SubscribeClient interface {
	Recv() (*Reading, error)
	grpc.ClientStream
}

type pacsysSubscribeClient struct {
	grpc.ClientStream
}

func (x *pacsysSubscribeClient) Recv() (*Reading, error) {
	m := new(Reading)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

// PacsysServer is the server API for the Pacsys service.
type PacsysServer interface {
	Read(context.Context, *ReadRequest) (*ReadResponse, error)
	Set(context.Context, *SetRequest) (*SetResponse, error)
	Alarms(context.Context, *AlarmsRequest) (*AlarmsResponse, error)
	Subscribe(*SubscribeRequest, Pacsys_SubscribeServer) error
}

// UnimplementedPacsysServer embeds into a real implementation so that
// adding a method to the service later doesn't break existing server
// types at compile time.
type UnimplementedPacsysServer struct{}

func (UnimplementedPacsysServer) Read(context.Context, *ReadRequest) (*ReadResponse, error) {
	return nil, grpcUnimplemented("Read")
}
func (UnimplementedPacsysServer) Set(context.Context, *SetRequest) (*SetResponse, error) {
	return nil, grpcUnimplemented("Set")
}
func (UnimplementedPacsysServer) Alarms(context.Context, *AlarmsRequest) (*AlarmsResponse, error) {
	return nil, grpcUnimplemented("Alarms")
}
func (UnimplementedPacsysServer) Subscribe(*SubscribeRequest, Pacsys_SubscribeServer) error {
	return grpcUnimplemented("Subscribe")
}

type Pacsys_SubscribeServer interface {
	Send(*Reading) error
	grpc.ServerStream
}

type pacsysSubscribeServer struct {
	grpc.ServerStream
}

func (x *pacsysSubscribeServer) Send(m *Reading) error {
	return x.ServerStream.SendMsg(m)
}

// RegisterPacsysServer registers srv on s, in the shape protoc-gen-go-grpc
// would emit for a grpc.ServiceRegistrar.
func RegisterPacsysServer(s grpc.ServiceRegistrar, srv PacsysServer) {
	s.RegisterService(&Pacsys_ServiceDesc, srv)
}

func _Pacsys_Read_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(ReadRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PacsysServer).Read(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: Pacsys_Read_FullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(PacsysServer).Read(ctx, req.(*ReadRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Pacsys_Set_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(SetRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PacsysServer).Set(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: Pacsys_Set_FullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(PacsysServer).Set(ctx, req.(*SetRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Pacsys_Alarms_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(AlarmsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PacsysServer).Alarms(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: Pacsys_Alarms_FullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(PacsysServer).Alarms(ctx, req.(*AlarmsRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Pacsys_Subscribe_Handler(srv interface{}, stream grpc.ServerStream) error {
	m := new(SubscribeRequest)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(PacsysServer).Subscribe(m, &pacsysSubscribeServer{stream})
}

const (
	Pacsys_Read_FullMethodName      = "/pacsys.v1.Pacsys/Read"
	Pacsys_Set_FullMethodName       = "/pacsys.v1.Pacsys/Set"
	Pacsys_Alarms_FullMethodName    = "/pacsys.v1.Pacsys/Alarms"
	Pacsys_Subscribe_FullMethodName = "/pacsys.v1.Pacsys/Subscribe"
)

// Pacsys_ServiceDesc is the grpc.ServiceDesc for the Pacsys service.
var Pacsys_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "pacsys.v1.Pacsys",
	HandlerType: (*PacsysServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Read", Handler: _Pacsys_Read_Handler},
		{MethodName: "Set", Handler: _Pacsys_Set_Handler},
		{MethodName: "Alarms", Handler: _Pacsys_Alarms_Handler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Subscribe", Handler: _Pacsys_Subscribe_Handler, ServerStreams: true},
	},
	Metadata: "pacsys.proto",
}

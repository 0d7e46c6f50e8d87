package stat

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	statserver "github.com/rarydzu/monodisk/monoserver/stat"
)

// Stats is the usage reported by a stat server
type Stats struct {
	Fs         string
	BlockSize  uint32
	Blocks     uint64
	DataBlocks uint64
	BlocksFree uint64
	Files      int
	MaxFiles   int
}

// Client is a client for the stat server.
type Client struct {
	conn *grpc.ClientConn
}

// NewConnection dials address, with mutual TLS when certDir is set
func NewConnection(address, certDir string, log *zap.SugaredLogger) (*grpc.ClientConn, error) {
	if len(certDir) == 0 {
		log.Infof("running insecure stat client for %s", address)
		return grpc.Dial(address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	caPem, err := os.ReadFile(fmt.Sprintf("%s/ca-cert.pem", certDir))
	if err != nil {
		return nil, err
	}
	certPool := x509.NewCertPool()
	if !certPool.AppendCertsFromPEM(caPem) {
		return nil, fmt.Errorf("Stat Client: no certificates in %s/ca-cert.pem", certDir)
	}
	clientCertPath := fmt.Sprintf("%s/client-cert.pem", certDir)
	clientKeyPath := fmt.Sprintf("%s/client-key.pem", certDir)
	clientCert, err := tls.LoadX509KeyPair(clientCertPath, clientKeyPath)
	if err != nil {
		return nil, err
	}
	config := &tls.Config{
		Certificates: []tls.Certificate{clientCert},
		RootCAs:      certPool,
	}
	return grpc.Dial(address, grpc.WithTransportCredentials(credentials.NewTLS(config)))
}

// New is a constructor for Client
func New(conn *grpc.ClientConn) *Client {
	return &Client{
		conn: conn,
	}
}

// Stat function return stat information about filesystem
func (c *Client) Stat(ctx context.Context, fs string) (*Stats, error) {
	in, err := structpb.NewStruct(map[string]interface{}{"fs": fs})
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, statserver.StatMethod, in, out); err != nil {
		return nil, err
	}
	f := out.GetFields()
	return &Stats{
		Fs:         f["fs"].GetStringValue(),
		BlockSize:  uint32(f["blockSize"].GetNumberValue()),
		Blocks:     uint64(f["blocks"].GetNumberValue()),
		DataBlocks: uint64(f["dataBlocks"].GetNumberValue()),
		BlocksFree: uint64(f["blocksFree"].GetNumberValue()),
		Files:      int(f["files"].GetNumberValue()),
		MaxFiles:   int(f["maxFiles"].GetNumberValue()),
	}, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

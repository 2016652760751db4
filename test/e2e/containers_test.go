package e2e

import (
	"context"
	"fmt"
	"testing"
	"time"

	glog "github.com/magicsong/color-glog"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/updraft-sh/updraft/cmd/updraft/store"
)

const (
	minioPort    = "9000"
	minioPortTCP = minioPort + "/tcp"
	username     = "ROOTNAME"
	password     = "CHANGEME123"
	region       = "us-east-1"
)

type logConsumer struct {
	name string
}

func (lc *logConsumer) Accept(l testcontainers.Log) {
	glog.Infof("[%s] %s", lc.name, string(l.Content))
}

type minioContainer struct {
	testcontainers.Container
	hostname string
	port     string
}

func createMinio(ctx context.Context, t *testing.T) *minioContainer {
	hostname := randomString("minio-")
	req := testcontainers.ContainerRequest{
		Image:        "quay.io/minio/minio",
		ExposedPorts: []string{minioPortTCP},
		Hostname:     hostname,
		Env:          map[string]string{"MINIO_ROOT_USER": username, "MINIO_ROOT_PASSWORD": password},
		Cmd:          []string{"server", "/data"},
		WaitingFor:   wait.ForHTTP("/minio/health/live").WithPort(minioPortTCP).WithStartupTimeout(2 * time.Minute),
		LogConsumerCfg: &testcontainers.LogConsumerConfig{
			Consumers: []testcontainers.LogConsumer{&logConsumer{name: hostname}},
		},
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	m := &minioContainer{Container: container, hostname: hostname}
	mappedPort, err := container.MappedPort(ctx, minioPort)
	require.NoError(t, err)
	m.port = mappedPort.Port()

	return m
}

func minioClient(t *testing.T, m *minioContainer) *minio.Client {
	cli, err := minio.New(fmt.Sprintf("127.0.0.1:%s", m.port), &minio.Options{
		Creds: credentials.NewStaticV4(username, password, ""),
	})
	require.NoError(t, err)
	return cli
}

func createBucket(t *testing.T, m *minioContainer, bucket string) {
	err := minioClient(t, m).MakeBucket(context.Background(), bucket, minio.MakeBucketOptions{Region: region})
	require.NoError(t, err)
}

// storeClient builds the production store client against the
// container, configured the way CI credentials would configure it.
func storeClient(t *testing.T, m *minioContainer, bucket string) *store.Client {
	st, err := store.NewClient(store.Config{
		AccessKey: username,
		SecretKey: password,
		Bucket:    bucket,
		Region:    region,
		Endpoint:  fmt.Sprintf("127.0.0.1:%s", m.port),
		PublicURL: fmt.Sprintf("http://127.0.0.1:%s/%s", m.port, bucket),
		Insecure:  true,
	})
	require.NoError(t, err)
	return st
}

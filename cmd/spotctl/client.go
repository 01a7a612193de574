package main

import (
	"context"
	"crypto/tls"
	"net/http"

	"connectrpc.com/connect"

	"github.com/NavarchProject/spotorch/pkg/api"
	"github.com/NavarchProject/spotorch/pkg/auth"
)

func newClient() api.OrchestratorServiceClient {
	httpClient := http.DefaultClient

	if insecure {
		httpClient = &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					InsecureSkipVerify: true,
				},
			},
		}
	}

	var opts []connect.ClientOption
	if authToken != "" {
		opts = append(opts, connect.WithInterceptors(auth.NewTokenInterceptor(authToken)))
	}
	return api.NewOrchestratorServiceClient(httpClient, controlPlaneAddr, opts...)
}

func requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), requestTimeout)
}

package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"bixquest/internal/models"

	"github.com/gojek/heimdall/v7"
	"github.com/gojek/heimdall/v7/httpclient"
	"github.com/hiendaovinh/toolkit/pkg/errorx"
)

// Authentication verifies opaque bearer tokens against the identity
// provider's verify endpoint.
type Authentication struct {
	client    *httpclient.Client
	verifyURL string
}

func NewAuthentication(verifyURL string) (*Authentication, error) {
	if verifyURL == "" {
		return nil, errors.New("verifyURL is empty")
	}

	backoff := heimdall.NewConstantBackoff(500*time.Millisecond, 100*time.Millisecond)
	client := httpclient.NewClient(
		httpclient.WithHTTPTimeout(10*time.Second),
		httpclient.WithRetrier(heimdall.NewRetrier(backoff)),
		httpclient.WithRetryCount(2),
	)

	return &Authentication{client, verifyURL}, nil
}

func (authentication *Authentication) Validate(token string) (*models.UserFromAuth, error) {
	if token == "" {
		return nil, errorx.Wrap(errors.New("missing token"), errorx.Authn)
	}

	headers := http.Header{}
	headers.Set("Authorization", fmt.Sprintf("Bearer %s", token))

	resp, err := authentication.client.Get(authentication.verifyURL, headers)
	if err != nil {
		return nil, errorx.Wrap(err, errorx.Service)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errorx.Wrap(fmt.Errorf("verify endpoint returned %d", resp.StatusCode), errorx.Authn)
	}

	var userAuth models.UserFromAuth
	if err := json.NewDecoder(resp.Body).Decode(&userAuth); err != nil {
		return nil, errorx.Wrap(err, errorx.Authn)
	}

	if userAuth.ID == 0 {
		return nil, errorx.Wrap(errors.New("verify endpoint returned no user id"), errorx.Authn)
	}

	return &userAuth, nil
}

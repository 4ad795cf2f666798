package dingtalk

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendMarkdown(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"errcode":0,"errmsg":"ok"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second)
	resp, err := c.SendMarkdown(context.Background(), "每日报告", "## 内容")
	require.NoError(t, err)
	assert.Equal(t, 0, resp.ErrCode)

	assert.Equal(t, "markdown", got["msgtype"])
	md := got["markdown"].(map[string]any)
	assert.Equal(t, "每日报告", md["title"])
	assert.Equal(t, "## 内容", md["text"])
}

func TestSendMarkdownSigned(t *testing.T) {
	secret := "SECtestsecret"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts := r.URL.Query().Get("timestamp")
		signature := r.URL.Query().Get("sign")
		require.NotEmpty(t, ts)
		require.NotEmpty(t, signature)

		tsMs, err := strconv.ParseInt(ts, 10, 64)
		require.NoError(t, err)
		mac := hmac.New(sha256.New, []byte(secret))
		_, _ = mac.Write([]byte(fmt.Sprintf("%d\n%s", tsMs, secret)))
		assert.Equal(t, base64.StdEncoding.EncodeToString(mac.Sum(nil)), signature)

		_, _ = w.Write([]byte(`{"errcode":0,"errmsg":"ok"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, secret, time.Second)
	_, err := c.SendMarkdown(context.Background(), "t", "m")
	require.NoError(t, err)
}

func TestSendMarkdownInBandError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"errcode":310000,"errmsg":"keywords not in content"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second)
	resp, err := c.SendMarkdown(context.Background(), "t", "m")
	require.NoError(t, err, "in-band errors surface via the response, not the transport")
	assert.Equal(t, 310000, resp.ErrCode)
}

func TestConfigured(t *testing.T) {
	assert.False(t, NewClient("", "", time.Second).Configured())
	assert.True(t, NewClient("https://oapi.dingtalk.com/robot/send?access_token=x", "", time.Second).Configured())

	var c *Client
	assert.False(t, c.Configured())

	_, err := NewClient("", "", time.Second).SendMarkdown(context.Background(), "t", "m")
	assert.Error(t, err)
}

package smtp

import (
	"bytes"
	"errors"
	"net"
	"net/textproto"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tenantmail/backend/internal/domain"
	"tenantmail/backend/internal/service"
)

func TestClassify(t *testing.T) {
	t.Run("SMTP认证错误码归为认证类", func(t *testing.T) {
		for _, code := range []int{530, 534, 535} {
			err := classify(&textproto.Error{Code: code, Msg: "auth required"})
			assert.Equal(t, service.DeliveryAuthentication, err.Category, "code %d", code)
		}
	})

	t.Run("其他SMTP错误码归为协议类", func(t *testing.T) {
		err := classify(&textproto.Error{Code: 550, Msg: "mailbox unavailable"})
		assert.Equal(t, service.DeliveryProtocol, err.Category)
	})

	t.Run("网络错误归为连接类", func(t *testing.T) {
		err := classify(&net.OpError{Op: "dial", Err: errors.New("connection refused")})
		assert.Equal(t, service.DeliveryConnection, err.Category)
	})

	t.Run("无法识别的错误归为未知类", func(t *testing.T) {
		err := classify(errors.New("something odd"))
		assert.Equal(t, service.DeliveryUnknown, err.Category)
	})

	t.Run("按消息内容嗅探连接失败", func(t *testing.T) {
		err := classify(errors.New("dial tcp: no such host"))
		assert.Equal(t, service.DeliveryConnection, err.Category)
	})
}

func TestBuildMessage(t *testing.T) {
	t.Run("密送只进信封不出现在报文头", func(t *testing.T) {
		tr := &Transport{}
		m, err := tr.buildMessage(
			"alice@acme.example", "",
			[]string{"bob@y.example"}, nil, []string{"secret@z.example"},
			"subject", "text", "", nil,
		)
		require.NoError(t, err)

		var buf bytes.Buffer
		_, err = m.WriteTo(&buf)
		require.NoError(t, err)

		raw := buf.String()
		assert.Contains(t, raw, "To: bob@y.example")
		// go-mail 把 Bcc 作为信封收件人，不写入报文头
		assert.NotContains(t, raw, "secret@z.example")
	})

	t.Run("非ASCII附件文件名按RFC2231编码", func(t *testing.T) {
		tr := &Transport{}
		m, err := tr.buildMessage(
			"alice@acme.example", "",
			[]string{"bob@y.example"}, nil, nil,
			"subject", "text", "",
			[]*domain.MailAttachment{{
				Filename:    "报告.pdf",
				ContentType: "application/pdf",
				Content:     []byte("pdf"),
			}},
		)
		require.NoError(t, err)

		var buf bytes.Buffer
		_, err = m.WriteTo(&buf)
		require.NoError(t, err)

		assert.Contains(t, buf.String(), "filename*=utf-8''%E6%8A%A5%E5%91%8A.pdf")
	})

	t.Run("改写From时带上Reply-To", func(t *testing.T) {
		tr := &Transport{}
		m, err := tr.buildMessage(
			"relay@provider.example", "alice@acme.example",
			[]string{"bob@y.example"}, nil, nil,
			"subject", "text", "", nil,
		)
		require.NoError(t, err)

		var buf bytes.Buffer
		_, err = m.WriteTo(&buf)
		require.NoError(t, err)

		raw := buf.String()
		assert.Contains(t, raw, "From: relay@provider.example")
		assert.Contains(t, raw, "Reply-To: alice@acme.example")
	})

	t.Run("文本与HTML组成multipart-alternative", func(t *testing.T) {
		tr := &Transport{}
		m, err := tr.buildMessage(
			"alice@acme.example", "",
			[]string{"bob@y.example"}, nil, nil,
			"subject", "text body", "<p>html body</p>", nil,
		)
		require.NoError(t, err)

		var buf bytes.Buffer
		_, err = m.WriteTo(&buf)
		require.NoError(t, err)

		raw := buf.String()
		assert.Contains(t, raw, "multipart/alternative")
		assert.Contains(t, raw, "text body")
		assert.Contains(t, raw, "html body")
	})
}

package proxy

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"

	"github.com/elazarl/goproxy"
	"github.com/inconshreveable/go-vhost"
	"github.com/sirupsen/logrus"

	"github.com/A6-9V/sw-proxy/internal/config"
)

func loadCertificate(cfg *config.Config) (*tls.Certificate, error) {
	if cfg.Server.HTTPS.CACertFile == "" || cfg.Server.HTTPS.CAKeyFile == "" {
		logrus.Debugf("No CA certificate configured, using goproxy default certificate")
		return nil, nil // Use default goproxy certificate
	}

	cert, err := tls.LoadX509KeyPair(cfg.Server.HTTPS.CACertFile, cfg.Server.HTTPS.CAKeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load CA certificate and key: %w", err)
	}
	logrus.Debugf("Loaded CA certificate from %s", cfg.Server.HTTPS.CACertFile)
	return &cert, nil
}

// setupHTTPSProxyHandler intercepts TLS for the origin host only. Every other
// CONNECT is tunnelled without inspection.
func (s *Server) setupHTTPSProxyHandler() error {
	caCert, err := loadCertificate(s.config)
	if err != nil {
		return err
	}

	if caCert == nil {
		if s.origin.Scheme == "https" {
			logrus.Warnf("TLS interception enabled but no CA certificate loaded, using goproxy default certificate")
		}
		caCert = &goproxy.GoproxyCa
	}
	s.proxy.CertStore = s.certs

	// Make goproxy use our CA certificate for the origin
	originMitm := &goproxy.ConnectAction{
		Action:    goproxy.ConnectMitm,
		TLSConfig: goproxy.TLSConfigFromCA(caCert),
	}
	handler := goproxy.FuncHttpsHandler(func(host string, ctx *goproxy.ProxyCtx) (*goproxy.ConnectAction, string) {
		if !s.rule.MatchConnect(host) {
			logrus.Debugf("Tunnelling CONNECT request for %s", host)
			return goproxy.OkConnect, host
		}
		logrus.Debugf("Intercepting CONNECT request for %s", host)
		return originMitm, host
	})
	s.proxy.OnRequest().HandleConnect(handler)
	return nil
}

// ServeTransparentHTTPS accepts raw TLS connections on ln and routes them by SNI,
// as if the client had sent a CONNECT. It returns when ctx is cancelled.
func (s *Server) ServeTransparentHTTPS(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		c, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			logrus.Warnf("Error accepting new connection: %v", err)
			continue
		}
		go s.serveTransparentConn(c)
	}
}

func (s *Server) serveTransparentConn(c net.Conn) {
	tlsConn, err := vhost.TLS(c)
	if err != nil {
		logrus.Warnf("Error reading TLS client hello: %v", err)
		_ = c.Close()
		return
	}
	if tlsConn.Host() == "" {
		logrus.Warnf("Cannot support non-SNI enabled clients")
		_ = c.Close()
		return
	}

	connectReq := &http.Request{
		Method: http.MethodConnect,
		URL: &url.URL{
			Opaque: tlsConn.Host(),
			Host:   net.JoinHostPort(tlsConn.Host(), "443"),
		},
		Host:       tlsConn.Host(),
		Header:     make(http.Header),
		RemoteAddr: c.RemoteAddr().String(),
	}
	s.proxy.ServeHTTP(&dumbResponseWriter{Conn: tlsConn}, connectReq)
}

// dumbResponseWriter hands a raw connection to goproxy's CONNECT handling.
// The status line goproxy answers the CONNECT with is dropped, since the
// client never sent one.
type dumbResponseWriter struct {
	net.Conn
	answered bool
}

func (d *dumbResponseWriter) Header() http.Header {
	return http.Header{}
}

func (d *dumbResponseWriter) Write(buf []byte) (int, error) {
	if !d.answered {
		d.answered = true
		if bytes.HasPrefix(buf, []byte("HTTP/1.0 200")) && bytes.HasSuffix(buf, []byte("\r\n\r\n")) {
			return len(buf), nil
		}
	}
	return d.Conn.Write(buf)
}

func (d *dumbResponseWriter) WriteHeader(int) {}

func (d *dumbResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return d, bufio.NewReadWriter(bufio.NewReader(d), bufio.NewWriter(d)), nil
}

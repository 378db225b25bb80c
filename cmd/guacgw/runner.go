package main

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/guacgw/gateway/args"
	"github.com/guacgw/gateway/config"
	"github.com/guacgw/gateway/gatewayerr"
	"github.com/guacgw/gateway/handshake"
	"github.com/guacgw/gateway/token"
	"github.com/guacgw/gateway/tunnel"
)

// sessionRunner is the intake.Runner: it owns everything between an
// accepted WebSocket and a relaying session — token decryption,
// argument merge, the guacd dial, the handshake, and the relay.
type sessionRunner struct {
	ctx      context.Context
	cfg      *config.Config
	recorder tunnel.Recorder
	log      zerolog.Logger
}

// Run implements intake.Runner.
func (r *sessionRunner) Run(id int64, client tunnel.ClientSocket, query map[string]string) (reachedRelay bool) {
	log := r.log.With().Int64("session_id", id).Logger()

	descriptor, mergedArgs, gerr := r.resolveArguments(query)
	if gerr != nil {
		log.Warn().Err(gerr).Msg("rejecting connection: bad token")
		_ = client.Close(closeCodeFor(gerr.Kind), string(gerr.Kind))
		return false
	}

	daemon, err := r.dialGuacd()
	if err != nil {
		log.Error().Err(err).Msg("dialing guacd")
		_ = client.Close(tunnel.CloseInternalServerErr, "upstream unavailable")
		return false
	}

	session := tunnel.NewSession(id, client, daemon, r.cfg.MaxInactivity(), r.recorder)
	hcfg := &handshake.Config{Protocol: descriptor.Type, Arguments: mergedArgs}
	if err := session.Handshake(hcfg, r.cfg.HandshakeTimeout()); err != nil {
		log.Error().Err(err).Msg("handshake failed")
		return false
	}

	log = log.With().Str("connection_id", session.ConnectionID()).Logger()
	log.Info().Msg("relaying")
	if err := session.Relay(r.ctx); err != nil {
		log.Info().Err(err).Msg("session ended")
	}
	return true
}

// resolveArguments decrypts the token named by query["token"], checks
// the descriptor's protocol type against configuration, and merges in
// defaults plus any allow-listed query overrides.
func (r *sessionRunner) resolveArguments(query map[string]string) (*token.Descriptor, map[string]string, *gatewayerr.Error) {
	raw, ok := query["token"]
	if !ok || raw == "" {
		return nil, nil, gatewayerr.New(gatewayerr.BadToken, fmt.Errorf("missing token"))
	}
	descriptor, err := token.Decrypt(r.cfg.Password, raw)
	if err != nil {
		return nil, nil, gatewayerr.New(gatewayerr.BadToken, err)
	}
	if !r.cfg.Client.KnownType(descriptor.Type) {
		return nil, nil, gatewayerr.New(gatewayerr.BadToken, fmt.Errorf("unknown protocol type %q", descriptor.Type))
	}
	merged := args.Merge(descriptor.Arguments, r.cfg.Client.Policy(descriptor.Type), query)
	return descriptor, merged, nil
}

// dialGuacd resolves the configured hostname (an IP literal is used
// as-is, anything else goes through a DNS lookup for an IPv4 address)
// and opens the TCP connection.
func (r *sessionRunner) dialGuacd() (net.Conn, error) {
	host := r.cfg.Guacd.Hostname
	if ip := net.ParseIP(host); ip == nil {
		addrs, err := net.LookupIP(host)
		if err != nil {
			return nil, fmt.Errorf("resolving guacd hostname %q: %w", host, err)
		}
		resolved := ""
		for _, a := range addrs {
			if v4 := a.To4(); v4 != nil {
				resolved = v4.String()
				break
			}
		}
		if resolved == "" {
			return nil, fmt.Errorf("no IPv4 address found for guacd hostname %q", host)
		}
		host = resolved
	}
	addr := net.JoinHostPort(host, fmt.Sprintf("%d", r.cfg.Guacd.Port))
	return net.DialTimeout("tcp", addr, 10*time.Second)
}

func closeCodeFor(kind gatewayerr.Kind) int {
	switch kind {
	case gatewayerr.Framing, gatewayerr.Timeout, gatewayerr.PeerClosed:
		return tunnel.CloseNormal
	default:
		return tunnel.CloseInternalServerErr
	}
}

// queryFromURL converts a raw URL query string's single-value form into
// the plain map the rest of the gateway works with.
func queryFromURL(raw map[string][]string) map[string]string {
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if len(v) > 0 {
			out[strings.ToLower(k)] = v[0]
		}
	}
	return out
}

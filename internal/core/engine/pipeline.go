package engine

import (
	"github.com/wsbridge/wsbridge/internal/core/crypto"
	"github.com/wsbridge/wsbridge/internal/core/observability/log"
)

// pipeline binds one role's codec and replay guard into the
// per-message processing path. Plaintext mode is a pass-through with no
// replay check.
type pipeline struct {
	settings *settings
	keys     *keyStore
	replay   *crypto.ReplayGuard
	lg       log.Log
}

// outbound prepares application text for the wire: sealed and
// Base64-encoded when encryption is enabled, unchanged otherwise.
func (p *pipeline) outbound(text string) (string, error) {
	if !p.settings.EncryptionEnabled() {
		return text, nil
	}
	codec := p.keys.get()
	if codec == nil {
		return "", ErrKeyNotConfigured
	}
	return codec.SealText(text)
}

// inbound processes a received text frame. A decryption or replay
// failure drops the message: it is logged here and the connection stays
// open. The second return reports whether the message survived.
func (p *pipeline) inbound(raw, peer string) (string, bool) {
	if !p.settings.EncryptionEnabled() {
		return raw, true
	}

	codec := p.keys.get()
	if codec == nil {
		p.lg.Warn("dropping inbound message: no key configured", log.String("peer", peer))
		return "", false
	}

	env, err := codec.OpenText(raw)
	if err != nil {
		p.lg.Warn("dropping inbound message: decrypt failed",
			log.String("peer", peer), log.Error(err))
		return "", false
	}

	if err = p.replay.Accept(env.Timestamp, env.Nonce[:]); err != nil {
		p.lg.Warn("dropping inbound message: replay check failed",
			log.String("peer", peer), log.Error(err))
		return "", false
	}

	return string(env.Plaintext), true
}

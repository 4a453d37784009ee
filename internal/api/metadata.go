package api

import "net/http"

// Version is the implementation version advertised in the metadata
// document. Overridden at link time for releases.
var Version = "dev"

// metadata is the root document launchers fetch to discover the
// instance: display name, the domains texture URLs may point at, and
// the public key for verifying signed profile properties.
type metadata struct {
	Meta            metaSection `json:"meta"`
	SkinDomains     []string    `json:"skinDomains"`
	SignaturePubkey string      `json:"signaturePublickey"`
}

type metaSection struct {
	ServerName            string            `json:"serverName"`
	ImplementationName    string            `json:"implementationName"`
	ImplementationVersion string            `json:"implementationVersion"`
	Links                 map[string]string `json:"links,omitempty"`
}

func (s *Server) handleMetadata(w http.ResponseWriter, r *http.Request) {
	cfg := s.engine.Config()

	pubkey, err := s.engine.Signer().PublicKeyPEM()
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	doc := metadata{
		Meta: metaSection{
			ServerName:            cfg.Server.Name,
			ImplementationName:    "yggdrasil",
			ImplementationVersion: Version,
		},
		SkinDomains:     cfg.Server.SkinDomains,
		SignaturePubkey: pubkey,
	}
	if cfg.Server.Homepage != "" {
		doc.Meta.Links = map[string]string{"homepage": cfg.Server.Homepage}
	}
	if doc.SkinDomains == nil {
		doc.SkinDomains = []string{}
	}

	writeJSON(w, http.StatusOK, doc)
}

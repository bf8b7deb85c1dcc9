package cli

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	insecurecreds "google.golang.org/grpc/credentials/insecure"

	grpcserver "github.com/and161185/passby/internal/server/grpc"
)

type relationFlags struct {
	addr      string
	caPath    string
	insecure  bool
	plaintext bool
	viewer    string
	target    string
	timeout   time.Duration
}

func newRelationCmd() *cobra.Command {
	var f relationFlags
	cmd := &cobra.Command{
		Use:   "relation",
		Short: "Query the membership service for a viewer/target pair",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			viewer, err := uuid.FromString(f.viewer)
			if err != nil {
				return fmt.Errorf("--viewer: %w", err)
			}
			target, err := uuid.FromString(f.target)
			if err != nil {
				return fmt.Errorf("--target: %w", err)
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), f.timeout)
			defer cancel()

			cc, err := dial(f.addr, f.caPath, f.insecure, f.plaintext)
			if err != nil {
				return err
			}
			defer cc.Close()
			return queryRelation(ctx, grpcserver.NewClient(cc), viewer, target, cmd.OutOrStdout())
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&f.addr, "addr", "localhost:8443", "membership service address")
	fs.StringVar(&f.caPath, "cacert", "", "CA cert (PEM)")
	fs.BoolVar(&f.insecure, "insecure", false, "skip cert verify (dev)")
	fs.BoolVar(&f.plaintext, "plaintext", false, "no TLS (server without tls.cert)")
	fs.StringVar(&f.viewer, "viewer", "", "viewer user id")
	fs.StringVar(&f.target, "target", "", "target user id")
	fs.DurationVar(&f.timeout, "timeout", 10*time.Second, "request timeout")
	_ = cmd.MarkFlagRequired("viewer")
	_ = cmd.MarkFlagRequired("target")
	return cmd
}

type relationView struct {
	Viewer  string `json:"viewer_id"`
	Target  string `json:"target_id"`
	Blocked bool   `json:"blocked"`
	Matched bool   `json:"matched"`
}

func queryRelation(ctx context.Context, cl *grpcserver.Client, viewer, target uuid.UUID, w io.Writer) error {
	blocked, err := cl.IsBlocked(ctx, viewer, target)
	if err != nil {
		return fmt.Errorf("is blocked: %w", err)
	}
	matched, err := cl.IsMatched(ctx, viewer, target)
	if err != nil {
		return fmt.Errorf("is matched: %w", err)
	}
	return printJSON(w, relationView{
		Viewer:  viewer.String(),
		Target:  target.String(),
		Blocked: blocked,
		Matched: matched,
	})
}

func loadTLS(caPath string, insecure bool) (credentials.TransportCredentials, error) {
	if insecure {
		return credentials.NewTLS(&tls.Config{InsecureSkipVerify: true}), nil
	}
	if caPath == "" {
		return credentials.NewClientTLSFromCert(nil, ""), nil
	}
	pem, err := os.ReadFile(caPath)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errors.New("bad CA cert")
	}
	return credentials.NewTLS(&tls.Config{RootCAs: pool}), nil
}

func dial(addr, caPath string, insecure, plaintext bool) (*grpc.ClientConn, error) {
	creds := insecurecreds.NewCredentials()
	if !plaintext {
		var err error
		if creds, err = loadTLS(caPath, insecure); err != nil {
			return nil, err
		}
	}
	return grpc.NewClient(addr, grpc.WithTransportCredentials(creds))
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

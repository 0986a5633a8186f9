// Package secretcontroller composes the cryptographer and the series/
// content stores into the "secret" abstraction: create, list, fetch,
// and delete, per the builder-style create API.
package secretcontroller

import (
	"context"
	"strings"
	"unicode"

	validation "github.com/jellydator/validation"

	"github.com/sarvex/keywhiz/internal/apperr"
	"github.com/sarvex/keywhiz/internal/crypto"
	"github.com/sarvex/keywhiz/internal/store"
	"github.com/sarvex/keywhiz/pkg/models"
)

// Controller composes a Cryptographer with the series/content stores.
type Controller struct {
	series  store.SeriesStore
	content store.ContentStore
	tx      store.Transactor
	crypto  *crypto.Cryptographer
	gen     *crypto.Generator
}

// New builds a Controller. tx is almost always the same backend as series
// and content (postgres.Store/memstore.Store implement all three), passed
// separately so Controller depends only on the store capabilities it uses.
func New(series store.SeriesStore, content store.ContentStore, tx store.Transactor, cryptographer *crypto.Cryptographer) *Controller {
	return &Controller{series: series, content: content, tx: tx, crypto: cryptographer, gen: crypto.NewGenerator()}
}

// CreateBuilder configures a create operation via the recognized
// options enumerated in the fluent With* chain, terminating in Create.
type CreateBuilder struct {
	ctrl              *Controller
	name              string
	plaintext         []byte
	creator           string
	description       string
	version           string
	autoVersion       bool
	metadata          map[string]string
	secretType        string
	generationOptions map[string]string
}

// Build starts a create operation for name/plaintext, attributed to
// creator. Chain With* calls and terminate with Create.
func (c *Controller) Build(name string, plaintext []byte, creator string) *CreateBuilder {
	return &CreateBuilder{ctrl: c, name: name, plaintext: plaintext, creator: creator}
}

func (b *CreateBuilder) WithDescription(d string) *CreateBuilder { b.description = d; return b }

// WithVersion pins an explicit version string. Omit this and call
// WithAutoVersion to have the controller generate one.
func (b *CreateBuilder) WithVersion(v string) *CreateBuilder { b.version = v; return b }

// WithAutoVersion requests a controller-generated version stamp when the
// caller has not pinned one via WithVersion.
func (b *CreateBuilder) WithAutoVersion() *CreateBuilder { b.autoVersion = true; return b }

func (b *CreateBuilder) WithMetadata(m map[string]string) *CreateBuilder { b.metadata = m; return b }
func (b *CreateBuilder) WithType(t string) *CreateBuilder                { b.secretType = t; return b }
func (b *CreateBuilder) WithGenerationOptions(o map[string]string) *CreateBuilder {
	b.generationOptions = o
	return b
}

func validateCreate(name string, metadata map[string]string) error {
	if err := validation.Validate(name,
		validation.Required,
		validation.By(func(value interface{}) error {
			s, _ := value.(string)
			if strings.Contains(s, "..") {
				return apperr.New(apperr.InvalidInput, `name must not contain ".."`)
			}
			return nil
		}),
	); err != nil {
		return apperr.Wrap(apperr.InvalidInput, "invalid secret name", err)
	}
	for k := range metadata {
		if err := validation.Validate(k, validation.Required); err != nil {
			return apperr.New(apperr.InvalidInput, "metadata keys must be non-empty printable strings")
		}
		for _, r := range k {
			if !unicode.IsPrint(r) {
				return apperr.New(apperr.InvalidInput, "metadata keys must be non-empty printable strings")
			}
		}
	}
	return nil
}

// Create runs the builder's create operation. Order of effect: series
// lookup by name → create series if absent (else reuse) → encrypt via
// the cryptographer → insert content. The lookup-or-create and insert run
// inside a single WithinTx unit of work, so a concurrent create of the
// same series can't interleave between the lookup and the insert.
func (b *CreateBuilder) Create(ctx context.Context) (*models.Secret, error) {
	if err := validateCreate(b.name, b.metadata); err != nil {
		return nil, err
	}

	version := b.version
	if version == "" && b.autoVersion {
		version = b.ctrl.gen.Next()
	}

	var secret *models.Secret
	err := b.ctrl.tx.WithinTx(ctx, func(ctx context.Context) error {
		series, err := b.ctrl.series.GetSeriesByName(ctx, b.name)
		freshlyCreated := false
		if apperr.Is(err, apperr.NotFound) {
			id, cerr := b.ctrl.series.CreateSeries(ctx, b.name, b.description, b.creator, b.secretType, b.generationOptions, b.metadata)
			if cerr != nil {
				return cerr
			}
			freshlyCreated = true
			series, err = b.ctrl.series.GetSeriesByID(ctx, id)
		}
		if err != nil {
			return err
		}

		envelope, err := b.ctrl.crypto.Encrypt(series.Name, b.plaintext)
		if err != nil {
			return err
		}

		contentID, err := b.ctrl.content.Create(ctx, series.ID, envelope, version, b.creator)
		if err != nil {
			if freshlyCreated {
				_ = b.ctrl.series.DeleteByName(ctx, series.Name)
			}
			return err
		}

		content, err := b.ctrl.content.GetContentByID(ctx, contentID)
		if err != nil {
			return err
		}

		secret = &models.Secret{Series: *series, Content: *content}
		secret.SetPlaintext(b.plaintext)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return secret, nil
}

// GetByNameAndVersion looks up (name, version) exactly. An empty version
// denotes the unversioned row, if any — never "latest". Callers wanting
// the latest revision must enumerate revisions via GetsByID. The series lookup
// and content read run inside one WithinTx unit of work: a consistent
// snapshot read so a concurrent delete of the series can't be observed
// as a series that resolves but has no matching content, or vice versa.
func (c *Controller) GetByNameAndVersion(ctx context.Context, name, version string) (*models.Secret, error) {
	var secret *models.Secret
	err := c.tx.WithinTx(ctx, func(ctx context.Context) error {
		series, err := c.series.GetSeriesByName(ctx, name)
		if err != nil {
			return err
		}
		contents, err := c.content.ListBySeries(ctx, series.ID)
		if err != nil {
			return err
		}
		for _, ct := range contents {
			if ct.Version == version {
				secret = &models.Secret{Series: *series, Content: ct}
				return nil
			}
		}
		return apperr.New(apperr.NotFound, "no content at that version")
	})
	if err != nil {
		return nil, err
	}
	return secret, nil
}

// GetByIDAndVersion is GetByNameAndVersion addressed by series id.
func (c *Controller) GetByIDAndVersion(ctx context.Context, id int64, version string) (*models.Secret, error) {
	var secret *models.Secret
	err := c.tx.WithinTx(ctx, func(ctx context.Context) error {
		series, err := c.series.GetSeriesByID(ctx, id)
		if err != nil {
			return err
		}
		contents, err := c.content.ListBySeries(ctx, series.ID)
		if err != nil {
			return err
		}
		for _, ct := range contents {
			if ct.Version == version {
				secret = &models.Secret{Series: *series, Content: ct}
				return nil
			}
		}
		return apperr.New(apperr.NotFound, "no content at that version")
	})
	if err != nil {
		return nil, err
	}
	return secret, nil
}

// GetsByID returns every version of a series, one Secret per content
// revision, read as a consistent snapshot via WithinTx.
func (c *Controller) GetsByID(ctx context.Context, id int64) ([]models.Secret, error) {
	var out []models.Secret
	err := c.tx.WithinTx(ctx, func(ctx context.Context) error {
		series, err := c.series.GetSeriesByID(ctx, id)
		if err != nil {
			return err
		}
		contents, err := c.content.ListBySeries(ctx, series.ID)
		if err != nil {
			return err
		}
		out = make([]models.Secret, 0, len(contents))
		for _, ct := range contents {
			out = append(out, models.Secret{Series: *series, Content: ct})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListAll returns the cartesian of series × their contents, ordered by
// series id then content id, read as a single consistent snapshot via
// WithinTx rather than one independent query per series.
func (c *Controller) ListAll(ctx context.Context) ([]models.Secret, error) {
	var out []models.Secret
	err := c.tx.WithinTx(ctx, func(ctx context.Context) error {
		seriesList, err := c.series.ListAll(ctx)
		if err != nil {
			return err
		}
		for _, series := range seriesList {
			contents, err := c.content.ListBySeries(ctx, series.ID)
			if err != nil {
				return err
			}
			for _, ct := range contents {
				out = append(out, models.Secret{Series: series, Content: ct})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SeriesCount reports how many secret series currently exist, for callers
// that only need the count and not the full ListAll join (e.g. the
// keywhiz_secrets_total gauge).
func (c *Controller) SeriesCount(ctx context.Context) (int, error) {
	seriesList, err := c.series.ListAll(ctx)
	if err != nil {
		return 0, err
	}
	return len(seriesList), nil
}

// DeleteSeries removes a series and, via the store's cascade, all of its
// content rows.
func (c *Controller) DeleteSeries(ctx context.Context, name string) error {
	return c.series.DeleteByName(ctx, name)
}

// DeleteVersion removes one content revision. The series row remains —
// to preserve the name reservation — unless DeleteSeries is called
// separately.
func (c *Controller) DeleteVersion(ctx context.Context, name, version string) error {
	series, err := c.series.GetSeriesByName(ctx, name)
	if err != nil {
		return err
	}
	return c.content.DeleteBySeriesAndVersion(ctx, series.ID, version)
}

// Decrypt resolves a Secret's plaintext, invoking the cryptographer
// exactly once per access with the owning series' name as AAD. Repeated
// calls on the same *Secret are no-ops after the first.
func (c *Controller) Decrypt(secret *models.Secret) ([]byte, error) {
	if p, ok := secret.Plaintext(); ok {
		return p, nil
	}
	p, err := c.crypto.Decrypt(secret.Series.Name, secret.Content.EncryptedContent)
	if err != nil {
		return nil, err
	}
	secret.SetPlaintext(p)
	return p, nil
}

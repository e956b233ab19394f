package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/edefter-tracker/internal/domain/company"
	"github.com/turtacn/edefter-tracker/internal/domain/deadline"
	"github.com/turtacn/edefter-tracker/internal/testutil"
	"github.com/turtacn/edefter-tracker/pkg/errors"
)

type countingInvalidator struct {
	calls int
	err   error
}

func (c *countingInvalidator) Invalidate(context.Context) error {
	c.calls++
	return c.err
}

func newTestService() (Service, *testutil.MemoryUploadRepo, *countingInvalidator, *testutil.MockLogger) {
	uploads := testutil.NewMemoryUploadRepo()
	inv := &countingInvalidator{}
	log := testutil.NewMockLogger()
	return NewService(testutil.NewMemoryCompanyRepo(), uploads, inv, log), uploads, inv, log
}

func strPtr(s string) *string { return &s }

func TestAdd_InfersRegimeFromIdentifier(t *testing.T) {
	svc, _, inv, _ := newTestService()
	ctx := context.Background()

	vkn, err := svc.Add(ctx, AddInput{Name: "Anadolu Gıda", Identifier: "1111111111"})
	require.NoError(t, err)
	assert.Equal(t, deadline.RegimeCorporateTax, vkn.Regime)
	assert.Equal(t, deadline.CadenceMonthly, vkn.Cadence)
	assert.True(t, vkn.Active)

	tckn, err := svc.Add(ctx, AddInput{Name: "Çınar Eczanesi", Identifier: "10000000146", Cadence: "quarterly", Email: "cinar@example.com"})
	require.NoError(t, err)
	assert.Equal(t, deadline.RegimeIncomeTax, tckn.Regime)
	assert.Equal(t, deadline.CadenceQuarterly, tckn.Cadence)
	assert.Equal(t, "cinar@example.com", tckn.Email)

	assert.Equal(t, 2, inv.calls)
}

func TestAdd_Rejections(t *testing.T) {
	svc, _, inv, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Add(ctx, AddInput{Name: "X", Identifier: "123"})
	assert.True(t, errors.IsValidation(err))

	_, err = svc.Add(ctx, AddInput{Name: "X", Identifier: "1111111111", Regime: "flat"})
	assert.True(t, errors.IsValidation(err))

	_, err = svc.Add(ctx, AddInput{Name: "X", Identifier: "1111111111", Email: "not-mail"})
	assert.True(t, errors.IsValidation(err))

	_, err = svc.Add(ctx, AddInput{Name: "A", Identifier: "1111111111"})
	require.NoError(t, err)
	_, err = svc.Add(ctx, AddInput{Name: "B", Identifier: "1111111111"})
	assert.True(t, errors.IsConflict(err))

	assert.Equal(t, 1, inv.calls)
}

func TestGet_ByIDOrKey(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()
	c, err := svc.Add(ctx, AddInput{Name: "Zirve Yapı", Identifier: "2222222222"})
	require.NoError(t, err)

	byKey, err := svc.Get(ctx, "2222222222")
	require.NoError(t, err)
	assert.Equal(t, c.ID, byKey.ID)

	byID, err := svc.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "Zirve Yapı", byID.Name)

	_, err = svc.Get(ctx, "9999999999")
	assert.True(t, errors.IsNotFound(err))

	_, err = svc.Get(ctx, " ")
	assert.True(t, errors.IsValidation(err))
}

func TestUpdate(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()
	_, err := svc.Add(ctx, AddInput{Name: "Zirve", Identifier: "2222222222"})
	require.NoError(t, err)

	c, err := svc.Update(ctx, "2222222222", UpdateInput{Name: strPtr("Zirve Yapı AŞ"), Cadence: strPtr("quarterly")})
	require.NoError(t, err)
	assert.Equal(t, "Zirve Yapı AŞ", c.Name)
	assert.Equal(t, deadline.CadenceQuarterly, c.Cadence)

	_, err = svc.Update(ctx, "2222222222", UpdateInput{Regime: strPtr("unknown")})
	assert.True(t, errors.IsValidation(err))

	stored, err := svc.Get(ctx, "2222222222")
	require.NoError(t, err)
	assert.Equal(t, "Zirve Yapı AŞ", stored.Name)
}

func TestSetActive_And_List(t *testing.T) {
	svc, _, inv, _ := newTestService()
	ctx := context.Background()
	_, err := svc.Add(ctx, AddInput{Name: "Işık Tekstil", Identifier: "3333333333"})
	require.NoError(t, err)
	_, err = svc.Add(ctx, AddInput{Name: "Anadolu Gıda", Identifier: "1111111111"})
	require.NoError(t, err)

	c, err := svc.SetActive(ctx, "3333333333", false)
	require.NoError(t, err)
	assert.False(t, c.Active)

	// No-op changes do not invalidate.
	before := inv.calls
	_, err = svc.SetActive(ctx, "3333333333", false)
	require.NoError(t, err)
	assert.Equal(t, before, inv.calls)

	active, err := svc.List(ctx, company.ListOptions{ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "Anadolu Gıda", active[0].Name)

	all, err := svc.List(ctx, company.ListOptions{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestRemove(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()
	_, err := svc.Add(ctx, AddInput{Name: "Pasif AŞ", Identifier: "5555555555"})
	require.NoError(t, err)

	require.NoError(t, svc.Remove(ctx, "5555555555"))
	_, err = svc.Get(ctx, "5555555555")
	assert.True(t, errors.IsNotFound(err))

	assert.True(t, errors.IsNotFound(svc.Remove(ctx, "5555555555")))
}

func TestUploads(t *testing.T) {
	svc, uploads, _, _ := newTestService()
	ctx := context.Background()
	c, err := svc.Add(ctx, AddInput{Name: "Anadolu Gıda", Identifier: "1111111111"})
	require.NoError(t, err)
	uploads.AddFiled("1111111111", deadline.Period{Year: 2025, Month: 1}, deadline.Period{Year: 2025, Month: 2})

	recs, err := svc.Uploads(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, 2, recs[0].Month)
}

func TestInvalidateFailureIsLogged(t *testing.T) {
	svc, _, inv, log := newTestService()
	inv.err = errors.New(errors.ErrCodeCacheError, "redis down")

	_, err := svc.Add(context.Background(), AddInput{Name: "Anadolu Gıda", Identifier: "1111111111"})
	require.NoError(t, err)
	assert.Equal(t, 1, log.Count("warn"))
}

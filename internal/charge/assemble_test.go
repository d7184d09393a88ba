package charge

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validDraft() Draft {
	return Draft{
		Info: LinkInfo{
			CustomerID:  "cus_000005219613",
			Value:       brl(10000),
			Description: "Mensalidade março",
			DueDate:     time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC),
		},
		Options: PaymentOptions{
			BillingMethods: []BillingMethod{BoletoPix, CreditCard},
		},
	}
}

func TestAssemble(t *testing.T) {
	req, err := Assemble(validDraft(), DefaultLimits())
	require.NoError(t, err)

	assert.Equal(t, "cus_000005219613", req.CustomerID)
	assert.Equal(t, int64(10000), req.Value.AmountMinor)
	assert.Equal(t, []BillingMethod{BoletoPix, CreditCard}, req.BillingMethods)
	assert.Nil(t, req.Installment)
	assert.Nil(t, req.Discount)
	assert.Nil(t, req.Fine)
	assert.Nil(t, req.Interest)
	assert.Equal(t, 1, req.InstallmentCount())
}

func TestAssembleValidation(t *testing.T) {
	testCases := []struct {
		name      string
		mutate    func(d *Draft)
		wantField string
	}{
		{name: "missing_customer", mutate: func(d *Draft) { d.Info.CustomerID = "" }, wantField: "customerId"},
		{name: "zero_value", mutate: func(d *Draft) { d.Info.Value = brl(0) }, wantField: "value"},
		{name: "negative_value", mutate: func(d *Draft) { d.Info.Value = brl(-100) }, wantField: "value"},
		{name: "missing_description", mutate: func(d *Draft) { d.Info.Description = "" }, wantField: "description"},
		{name: "blank_customer", mutate: func(d *Draft) { d.Info.CustomerID = "   " }, wantField: "customerId"},
		{name: "blank_description", mutate: func(d *Draft) { d.Info.Description = "\t\n" }, wantField: "description"},
		{name: "value_above_limit", mutate: func(d *Draft) { d.Info.Value = brl(MaxValueMinor + 1) }, wantField: "value"},
		{name: "missing_due_date", mutate: func(d *Draft) { d.Info.DueDate = time.Time{} }, wantField: "dueDate"},
		{name: "no_billing_method", mutate: func(d *Draft) { d.Options.BillingMethods = nil }, wantField: "billingMethods"},
		{name: "unknown_billing_method", mutate: func(d *Draft) { d.Options.BillingMethods = []BillingMethod{"CHEQUE"} }, wantField: "billingMethods"},
		{name: "duplicate_billing_method", mutate: func(d *Draft) { d.Options.BillingMethods = []BillingMethod{BoletoPix, BoletoPix} }, wantField: "billingMethods"},
		{
			name: "installment_count_zero",
			mutate: func(d *Draft) {
				d.Options.InstallmentEnabled = true
				d.Options.InstallmentCount = 0
			},
			wantField: "installmentCount",
		},
		{
			name: "installment_count_over_limit",
			mutate: func(d *Draft) {
				d.Options.InstallmentEnabled = true
				d.Options.InstallmentCount = 13
			},
			wantField: "installmentCount",
		},
		{
			name: "fixed_discount_above_installment",
			mutate: func(d *Draft) {
				d.Options.InstallmentEnabled = true
				d.Options.InstallmentCount = 4
				d.Options.Discount = DiscountRule{Enabled: true, Type: Fixed, Value: dec("25.01")}
			},
			wantField: "discount.value",
		},
		{
			name: "huge_fixed_discount",
			mutate: func(d *Draft) {
				d.Options.Discount = DiscountRule{Enabled: true, Type: Fixed, Value: dec("184467440737095616.16")}
			},
			wantField: "discount.value",
		},
		{
			name: "huge_fixed_fine",
			mutate: func(d *Draft) {
				d.Options.Fine = FineRule{Enabled: true, Type: Fixed, Value: dec("184467440737095616.16")}
			},
			wantField: "fine.value",
		},
		{
			name: "first_missing_field_wins",
			mutate: func(d *Draft) {
				d.Info.Description = ""
				d.Info.CustomerID = ""
			},
			wantField: "customerId",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			d := validDraft()
			tc.mutate(&d)

			req, err := Assemble(d, DefaultLimits())
			assert.Nil(t, req)
			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "got %v", err)
			assert.Equal(t, tc.wantField, verr.Field)
			assert.NotEmpty(t, verr.Message)
		})
	}
}

func TestAssembleAcceptsLargestValue(t *testing.T) {
	d := validDraft()
	d.Info.Value = brl(MaxValueMinor)
	d.Options.Fine = FineRule{Enabled: true, Type: Fixed, Value: dec("1000000000")}

	req, err := Assemble(d, DefaultLimits())
	require.NoError(t, err)
	assert.Equal(t, MaxValueMinor, req.Value.AmountMinor)
}

func TestAssembleRejectsMissingBillingMethodWhenEverythingElseIsValid(t *testing.T) {
	d := validDraft()
	d.Options.BillingMethods = []BillingMethod{}
	d.Options.InstallmentEnabled = true
	d.Options.InstallmentCount = 3
	d.Options.Fine = FineRule{Enabled: true, Type: Percentage, Value: dec("2")}

	_, err := Assemble(d, DefaultLimits())
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "billingMethods", verr.Field)
}

func TestAssembleInstallments(t *testing.T) {
	d := validDraft()
	d.Options.InstallmentEnabled = true
	d.Options.InstallmentCount = 3

	req, err := Assemble(d, DefaultLimits())
	require.NoError(t, err)
	require.NotNil(t, req.Installment)
	assert.Equal(t, 3, req.InstallmentCount())
	assert.Equal(t, int64(3333), req.Installment.PerInstallment.AmountMinor)
	assert.Equal(t, int64(3334), req.Installment.Last().AmountMinor)

	d.Options.InstallmentCount = 1
	req, err = Assemble(d, DefaultLimits())
	require.NoError(t, err)
	assert.Nil(t, req.Installment)

	d.Options.InstallmentEnabled = false
	d.Options.InstallmentCount = 6
	req, err = Assemble(d, DefaultLimits())
	require.NoError(t, err)
	assert.Nil(t, req.Installment)
}

func TestAssembleIncludesOnlyEnabledRules(t *testing.T) {
	d := validDraft()
	d.Options.Discount = DiscountRule{Enabled: true, Type: Percentage, Value: dec("5"), DueDateLimitDays: 3}
	d.Options.Fine = FineRule{Enabled: false, Type: Percentage, Value: dec("2")}
	d.Options.Interest = InterestRule{Enabled: true, Value: dec("1")}

	req, err := Assemble(d, DefaultLimits())
	require.NoError(t, err)
	require.NotNil(t, req.Discount)
	assert.Equal(t, 3, req.Discount.DueDateLimitDays)
	assert.Nil(t, req.Fine)
	require.NotNil(t, req.Interest)
	assert.True(t, req.Interest.Value.Equal(dec("1")))
}

func TestAssembleFreeValue(t *testing.T) {
	d := validDraft()
	d.Info.Value = brl(0)
	d.Info.FreeValue = true
	d.Options.InstallmentEnabled = true
	d.Options.InstallmentCount = 4
	d.Options.Discount = DiscountRule{Enabled: true, Type: Fixed, Value: dec("10")}

	req, err := Assemble(d, DefaultLimits())
	require.NoError(t, err)
	assert.True(t, req.FreeValue)
	require.NotNil(t, req.Installment)
	for _, inst := range req.Installment.Installments() {
		assert.True(t, inst.Value.IsZero())
	}
}

func TestAssembleCopiesBillingMethods(t *testing.T) {
	d := validDraft()
	req, err := Assemble(d, DefaultLimits())
	require.NoError(t, err)

	d.Options.BillingMethods[0] = CreditCard
	assert.Equal(t, BoletoPix, req.BillingMethods[0])
}

func TestAssembleWithoutInstallmentCap(t *testing.T) {
	d := validDraft()
	d.Options.InstallmentEnabled = true
	d.Options.InstallmentCount = 48

	req, err := Assemble(d, Limits{})
	require.NoError(t, err)
	assert.Equal(t, 48, req.InstallmentCount())
}

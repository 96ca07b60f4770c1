package cloudvariant

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup_AllVariantsRegistered(t *testing.T) {
	t.Parallel()
	for _, v := range []Variant{AwsEks, Gke, ScwKapsule, AzureAks, OnPremise} {
		tbl, err := Lookup(v)
		require.NoError(t, err, v)
		assert.Equal(t, v, tbl.Variant)
		assert.NotEmpty(t, tbl.DefaultStorageClassName)
		assert.NotNil(t, tbl.ParseOutputs)
		assert.NotNil(t, tbl.ValidateInstanceType)
		assert.NotNil(t, tbl.BucketRegion)
		assert.NotNil(t, tbl.LokiStorageConfigBlob)
	}
}

func TestLookup_UnknownVariant(t *testing.T) {
	t.Parallel()
	_, err := Lookup(Variant("made-up"))
	assert.Error(t, err)
}

func TestAWS_ParseOutputs_MissingKeys(t *testing.T) {
	t.Parallel()
	tbl, _ := Lookup(AwsEks)
	_, err := tbl.ParseOutputs(map[string]any{})
	assert.Error(t, err)
}

func TestAWS_ParseOutputs_Success(t *testing.T) {
	t.Parallel()
	tbl, _ := Lookup(AwsEks)
	out, err := tbl.ParseOutputs(map[string]any{
		"aws_account_id":                       "123456789012",
		"aws_iam_loki_role_arn":                "arn:aws:iam::123:role/loki",
		"aws_iam_external_dns_role_arn":        "arn:aws:iam::123:role/dns",
		"aws_iam_cluster_autoscaler_role_arn":  "arn:aws:iam::123:role/ca",
		"aws_s3_loki_bucket_name":              "qovery-logs-abc",
		"loki_storage_config_aws_s3":           map[string]any{"region": "eu-west-3"},
		"cluster_security_group_id":            "sg-123",
	})
	require.NoError(t, err)
	assert.Equal(t, "123456789012", out.AwsAccountID)
	assert.Equal(t, "qovery-logs-abc", out.AwsS3LokiBucketName)
	assert.Equal(t, "arn:aws:iam::123:role/loki", out.AwsIAMRoleARNs["loki"])
}

func TestAWS_ValidateInstanceType(t *testing.T) {
	t.Parallel()
	tbl, _ := Lookup(AwsEks)
	assert.NoError(t, tbl.ValidateInstanceType("t3.medium"))
	assert.Error(t, tbl.ValidateInstanceType("z9.huge"))
}

func TestGCP_ValidateInstanceType(t *testing.T) {
	t.Parallel()
	tbl, _ := Lookup(Gke)
	assert.NoError(t, tbl.ValidateInstanceType("e2-standard-4"))
	assert.Error(t, tbl.ValidateInstanceType("zz-standard-4"))
}

func TestSCW_ValidateInstanceType(t *testing.T) {
	t.Parallel()
	tbl, _ := Lookup(ScwKapsule)
	assert.NoError(t, tbl.ValidateInstanceType("DEV1-M"))
	assert.Error(t, tbl.ValidateInstanceType("NOPE1-M"))
}

func TestOnPremise_ParseOutputs_NeverFails(t *testing.T) {
	t.Parallel()
	tbl, _ := Lookup(OnPremise)
	out, err := tbl.ParseOutputs(nil)
	require.NoError(t, err)
	assert.Equal(t, OnPremise, out.Variant)
}

func TestRegister_PanicsOnDuplicate(t *testing.T) {
	t.Parallel()
	assert.Panics(t, func() {
		Register(Table{Variant: AwsEks})
	})
}

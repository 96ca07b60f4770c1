package cloudvariant

import (
	"fmt"
	"strings"
)

// awsOutputKeys are the Terraform output keys the AWS variant's phase
// must populate.
var awsOutputKeys = []string{
	"aws_account_id",
	"aws_iam_loki_role_arn",
	"aws_iam_external_dns_role_arn",
	"aws_iam_cluster_autoscaler_role_arn",
	"aws_s3_loki_bucket_name",
	"loki_storage_config_aws_s3",
	"cluster_security_group_id",
}

func init() {
	Register(Table{
		Variant:                 AwsEks,
		DefaultStorageClassName: "aws-ebs-csi-gp3",
		OutputKeys:              awsOutputKeys,
		ParseOutputs:            parseAWSOutputs,
		ValidateInstanceType:    validateAWSInstanceType,
		BucketRegion:            func(clusterRegion string) string { return clusterRegion },
		LokiStorageConfigBlob:   lokiStorageConfigAWS,
	})
}

func parseAWSOutputs(raw map[string]any) (InfrastructureOutput, error) {
	if missing := RequireKeys(raw, awsOutputKeys); len(missing) > 0 {
		return InfrastructureOutput{}, fmt.Errorf("aws terraform outputs missing required keys: %v", missing)
	}

	roles := map[string]string{
		"loki":               asString(raw["aws_iam_loki_role_arn"]),
		"external_dns":       asString(raw["aws_iam_external_dns_role_arn"]),
		"cluster_autoscaler": asString(raw["aws_iam_cluster_autoscaler_role_arn"]),
	}

	lokiCfg, _ := raw["loki_storage_config_aws_s3"].(map[string]any)

	return InfrastructureOutput{
		Variant:                AwsEks,
		AwsAccountID:           asString(raw["aws_account_id"]),
		AwsIAMRoleARNs:         roles,
		AwsS3LokiBucketName:    asString(raw["aws_s3_loki_bucket_name"]),
		LokiStorageConfigAWSS3: lokiCfg,
		ClusterSecurityGroupID: asString(raw["cluster_security_group_id"]),
		ClusterPublicHostname:  "", // AWS exposes the EKS endpoint via kubeconfig, not a Terraform output
	}, nil
}

// awsSupportedInstanceFamilies is deliberately small: it covers the
// families the node-pool topology's "instance families" field is
// expected to carry in practice, not an exhaustive EC2 catalog.
var awsSupportedInstanceFamilies = map[string]bool{
	"t3": true, "t3a": true, "m5": true, "m6i": true, "c5": true, "c6i": true, "r5": true,
}

func validateAWSInstanceType(instanceType string) error {
	family, _, _ := strings.Cut(instanceType, ".")
	if !awsSupportedInstanceFamilies[family] {
		return fmt.Errorf("unsupported AWS instance family %q", family)
	}
	return nil
}

func lokiStorageConfigAWS(out InfrastructureOutput) (map[string]any, error) {
	if out.AwsS3LokiBucketName == "" {
		return nil, fmt.Errorf("aws: loki bucket name not populated in infrastructure output")
	}
	cfg := map[string]any{
		"type": "s3",
		"s3": map[string]any{
			"bucketnames": out.AwsS3LokiBucketName,
			"region":      "", // filled by caller from the cluster request's region
		},
	}
	for k, v := range out.LokiStorageConfigAWSS3 {
		cfg[k] = v
	}
	return cfg, nil
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

package riak

import (
	"context"

	"github.com/riakclient/goriak/internal/resthttp"
)

// GetBucketProperties reads a bucket's properties over the legacy
// HTTP interface (spec §1: the binary protocol's get-bucket message is
// not wired in this core; HTTP is the one path for bucket properties).
func (c *Client) GetBucketProperties(ctx context.Context, bucketType, bucket string) (map[string]interface{}, error) {
	if err := validateComponent("bucket", bucket); err != nil {
		return nil, err
	}
	hc, err := c.anyHTTPClient()
	if err != nil {
		return nil, err
	}
	props, err := hc.GetProps(ctx, bucketType, bucket)
	if err != nil {
		if resthttp.IsNotFoundStatus(err) {
			return nil, NewError(CodeNotFound, "no properties set for "+bucket)
		}
		return nil, WrapError(CodeInvalidResponse, err, "")
	}
	return props, nil
}

// SetBucketProperties overwrites a bucket's properties.
func (c *Client) SetBucketProperties(ctx context.Context, bucketType, bucket string, props map[string]interface{}) error {
	if err := validateComponent("bucket", bucket); err != nil {
		return err
	}
	hc, err := c.anyHTTPClient()
	if err != nil {
		return err
	}
	if err := hc.SetProps(ctx, bucketType, bucket, props); err != nil {
		return WrapError(CodeInvalidResponse, err, "")
	}
	return nil
}

// ResetBucketProperties restores a bucket's properties to server
// defaults. A 404 from the server means the bucket never had custom
// properties and is reported as CodeNotFound (spec §6).
func (c *Client) ResetBucketProperties(ctx context.Context, bucketType, bucket string) error {
	if err := validateComponent("bucket", bucket); err != nil {
		return err
	}
	hc, err := c.anyHTTPClient()
	if err != nil {
		return err
	}
	if err := hc.ResetProps(ctx, bucketType, bucket); err != nil {
		if resthttp.IsNotFoundStatus(err) {
			return NewError(CodeNotFound, "no properties set for "+bucket)
		}
		return WrapError(CodeInvalidResponse, err, "")
	}
	return nil
}

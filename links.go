package riak

import "context"

// WalkLinksResult is the outcome of a WalkLinks call: the objects
// reached plus how many link targets could not be fetched.
type WalkLinksResult struct {
	Objects []Object
	Skipped int
}

// WalkLinks follows every link tagged tag (or every link, when tag is
// empty) from start's primary content, fetching each target with Get.
// It is best-effort: a target whose Get fails is counted in Skipped
// and otherwise ignored, rather than aborting the whole walk — per
// SPEC_FULL §6's resolution of the dropped-links Open Question, this
// core never silently claims completeness, it reports what it missed.
func (c *Client) WalkLinks(ctx context.Context, start Object, tag string) (WalkLinksResult, error) {
	var result WalkLinksResult
	for _, link := range start.Content.Meta.Links {
		if tag != "" && link.Tag != tag {
			continue
		}
		obj, err := c.Get(ctx, Key{BucketType: start.BucketType, Bucket: link.Bucket, Key: link.Key}, nil)
		if err != nil {
			result.Skipped++
			continue
		}
		result.Objects = append(result.Objects, obj)
	}
	return result, nil
}

// riakctl is a small operator CLI over this module's core: enough to
// ping a cluster, get/put a value, and bump a counter from a shell,
// without pulling in the full query-DSL sugar the core deliberately
// leaves out of scope.
//
// The teacher's own cmd/ package source was not retrieved for this
// pack (only its _test.go files were), so this command is grounded on
// the pack's general spf13/cobra + spf13/pflag convention rather than
// a specific teacher file — see DESIGN.md.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"

	goriak "github.com/riakclient/goriak"
)

var (
	nodeAddr string
	httpAddr string
	cacheDir string
)

func main() {
	root := &cobra.Command{
		Use:   "riakctl",
		Short: "Operate a Riak cluster from the command line",
	}
	root.PersistentFlags().StringVar(&nodeAddr, "node", "127.0.0.1:8087", "Riak PB address")
	root.PersistentFlags().StringVar(&httpAddr, "http", "", "Riak legacy HTTP address for bucket-properties access (none of riakctl's commands use it)")
	root.PersistentFlags().StringVar(&cacheDir, "cache-dir", "", "directory for the causal-vector cache (default ~/.riakctl)")

	root.AddCommand(pingCmd(), getCmd(), putCmd(), counterGetCmd(), counterIncrCmd(), batchDemoCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newClient() (*goriak.Client, error) {
	return goriak.NewClient(goriak.ClusterConfig{
		Nodes: []goriak.NodeConfig{{
			Name:         nodeAddr,
			Addr:         nodeAddr,
			HTTPAddr:     httpAddr,
			PoolCapacity: 4,
		}},
		Retries:        2,
		CooldownWindow: 10 * time.Second,
	})
}

func pingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check connectivity to the cluster",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			defer c.Close()
			if err := c.Ping(context.Background()); err != nil {
				return err
			}
			fmt.Println("pong")
			return nil
		},
	}
}

func getCmd() *cobra.Command {
	var bucketType string
	cmd := &cobra.Command{
		Use:   "get <bucket> <key>",
		Short: "Fetch an object and print its value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			defer c.Close()
			key := goriak.Key{BucketType: bucketType, Bucket: args[0], Key: args[1]}
			obj, err := c.Get(context.Background(), key, nil)
			if err != nil {
				return err
			}
			if obj.HasSiblings() {
				fmt.Fprintf(os.Stderr, "warning: %d siblings, printing the first\n", len(obj.Siblings))
			}
			if err := saveVClock(args[0], args[1], obj.CausalVector); err != nil {
				fmt.Fprintf(os.Stderr, "warning: could not cache causal vector: %v\n", err)
			}
			os.Stdout.Write(obj.Content.Value)
			fmt.Println()
			return nil
		},
	}
	cmd.Flags().StringVar(&bucketType, "type", "", "bucket type")
	return cmd
}

func putCmd() *cobra.Command {
	var bucketType, contentType string
	cmd := &cobra.Command{
		Use:   "put <bucket> <key> <value>",
		Short: "Write a value and cache the returned causal vector (a cached vector is not sent with the write)",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			defer c.Close()
			key := goriak.Key{BucketType: bucketType, Bucket: args[0], Key: args[1]}
			content := goriak.Content{Value: []byte(args[2]), Meta: goriak.ContentMeta{ContentType: contentType}}
			obj, err := c.Put(context.Background(), key, content, &goriak.PutOptions{ReturnBody: true})
			if err != nil {
				return err
			}
			return saveVClock(args[0], args[1], obj.CausalVector)
		},
	}
	cmd.Flags().StringVar(&bucketType, "type", "", "bucket type")
	cmd.Flags().StringVar(&contentType, "content-type", "application/octet-stream", "content type")
	return cmd
}

func counterGetCmd() *cobra.Command {
	var bucketType string
	cmd := &cobra.Command{
		Use:   "counter-get <bucket> <key>",
		Short: "Read a CRDT counter",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			defer c.Close()
			key := goriak.Key{BucketType: bucketType, Bucket: args[0], Key: args[1]}
			v, err := c.GetCounter(context.Background(), key)
			if err != nil {
				return err
			}
			fmt.Println(v)
			return nil
		},
	}
	cmd.Flags().StringVar(&bucketType, "type", "", "bucket type")
	return cmd
}

func counterIncrCmd() *cobra.Command {
	var bucketType string
	var delta int64
	cmd := &cobra.Command{
		Use:   "counter-incr <bucket> <key>",
		Short: "Increment (or decrement, with a negative --by) a CRDT counter",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			defer c.Close()
			key := goriak.Key{BucketType: bucketType, Bucket: args[0], Key: args[1]}
			v, err := c.IncrementCounter(context.Background(), key, delta)
			if err != nil {
				return err
			}
			fmt.Println(v)
			return nil
		},
	}
	cmd.Flags().StringVar(&bucketType, "type", "", "bucket type")
	cmd.Flags().Int64Var(&delta, "by", 1, "amount to add")
	return cmd
}

func batchDemoCmd() *cobra.Command {
	var bucketType string
	return &cobra.Command{
		Use:   "batch-demo <bucket> <key1> [key2...]",
		Short: "Fetch several keys over one pinned connection",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			defer c.Close()
			bucket, keys := args[0], args[1:]
			riakKeys := make([]goriak.Key, len(keys))
			for i, k := range keys {
				riakKeys[i] = goriak.Key{BucketType: bucketType, Bucket: bucket, Key: k}
			}
			results, err := c.MultiGet(context.Background(), riakKeys, nil)
			if err != nil {
				return err
			}
			for _, r := range results {
				if r.Err != nil {
					fmt.Printf("%s: error: %v\n", r.Key.Key, r.Err)
					continue
				}
				fmt.Printf("%s: %s\n", r.Key.Key, r.Object.Content.Value)
			}
			return nil
		},
	}
}

// vclockCacheFile resolves ~/.riakctl/vclocks.json unless --cache-dir
// overrides it.
func vclockCacheFile() (string, error) {
	dir := cacheDir
	if dir == "" {
		home, err := homedir.Dir()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(home, ".riakctl")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return filepath.Join(dir, "vclocks.json"), nil
}

func saveVClock(bucket, key string, vclock []byte) error {
	if len(vclock) == 0 {
		return nil
	}
	path, err := vclockCacheFile()
	if err != nil {
		return err
	}
	cache := map[string][]byte{} // encoding/json stores []byte as base64
	if data, err := os.ReadFile(path); err == nil {
		_ = json.Unmarshal(data, &cache)
	}
	cache[bucket+"/"+key] = vclock
	data, err := json.MarshalIndent(cache, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"ipnis/internal/client"
	"ipnis/internal/common/fsutil"
	"ipnis/internal/signing"
	"ipnis/internal/storage"
	"ipnis/pkg/tensor"
	"ipnis/pkg/types"
	"ipnis/pkg/vision"
)

const defaultKeyFile = "~/.ipnis/client.key"

type options struct {
	url           string
	keyFile       string
	serverAccount string
	timeout       time.Duration
	retries       int
}

func newRootCmd() *cobra.Command {
	opts := &options{url: "http://localhost:8080"}
	if v := os.Getenv("IPNIS_URL"); v != "" {
		opts.url = v
	}
	root := &cobra.Command{
		Use:           "ipnis",
		Short:         "Client for the ipnis inference daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&opts.url, "url", opts.url, "Daemon base URL (defaults IPNIS_URL)")
	pf.StringVar(&opts.keyFile, "key-file", defaultKeyFile, "Client private key; generated when missing")
	pf.StringVar(&opts.serverAccount, "server", "", "Expected daemon account; empty accepts any")
	pf.DurationVar(&opts.timeout, "timeout", 5*time.Minute, "Request timeout")
	pf.IntVar(&opts.retries, "retries", 0, "Retries when the daemon is too busy")

	root.AddCommand(
		newKeygenCmd(opts),
		newHashCmd(),
		newPutCmd(),
		newLoadCmd(opts),
		newCallCmd(opts),
		newStatusCmd(opts),
	)
	return root
}

func newKeygenCmd(opts *options) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Create a signing key and print its account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := fsutil.ExpandHome(opts.keyFile)
			if err != nil {
				return err
			}
			if fsutil.PathExists(path) && !force {
				return fmt.Errorf("%s exists; use --force to replace it", path)
			}
			key, err := signing.GenerateKey()
			if err != nil {
				return err
			}
			if err := key.SaveKey(path); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), key.Account())
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing key")
	return cmd
}

func newHashCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash <file>",
		Short: "Print the content path of a model file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := storage.HashFile(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), p.String())
			return nil
		},
	}
}

func newPutCmd() *cobra.Command {
	var dir, bucket string
	cmd := &cobra.Command{
		Use:   "put <file>",
		Short: "Copy a model file into the blob store and print its content path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			root, err := fsutil.ExpandHome(dir)
			if err != nil {
				return err
			}
			store, err := storage.NewLocal(root, nil)
			if err != nil {
				return err
			}
			p, err := store.Put(ctx, args[0])
			if err != nil {
				return err
			}
			if bucket != "" {
				gcs, err := storage.NewGCSStore(ctx, bucket)
				if err != nil {
					return err
				}
				defer gcs.Close()
				if err := gcs.Upload(ctx, args[0], p); err != nil {
					return err
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), p.String())
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "storage-dir", "~/.ipnis/store", "Local blob directory")
	cmd.Flags().StringVar(&bucket, "gcs-bucket", "", "Also upload to this GCS bucket")
	return cmd
}

func newLoadCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "load <hash:len>",
		Short: "Compile a model on the daemon and print its signature",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := types.ParsePath(args[0])
			if err != nil {
				return err
			}
			c, err := opts.client()
			if err != nil {
				return err
			}
			model, err := c.LoadModel(cmd.Context(), p)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), model)
		},
	}
}

func newCallCmd(opts *options) *cobra.Command {
	var top int
	cmd := &cobra.Command{
		Use:   "call <hash:len> name=<image file>|name=@<tensor.json>...",
		Short: "Run a model on the daemon",
		Example: "  ipnis call 9f86...0a08:102502400 data=cat.jpg --top 5\n" +
			"  ipnis call 9f86...0a08:102502400 input_ids=@ids.json",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			p, err := types.ParsePath(args[0])
			if err != nil {
				return err
			}
			c, err := opts.client()
			if err != nil {
				return err
			}
			model, err := c.LoadModel(ctx, p)
			if err != nil {
				return err
			}
			inputs, err := readInputs(model, args[1:])
			if err != nil {
				return err
			}
			outputs, err := c.Call(ctx, model, inputs)
			if err != nil {
				return err
			}
			if top > 0 {
				return printTop(cmd.OutOrStdout(), outputs, top)
			}
			return printJSON(cmd.OutOrStdout(), outputs)
		},
	}
	cmd.Flags().IntVar(&top, "top", 0, "Print the k most likely classes of each class output")
	return cmd
}

func newStatusCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the daemon status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			st, err := c.Status(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), st)
		},
	}
}

func (o *options) client() (*client.Client, error) {
	path, err := fsutil.ExpandHome(o.keyFile)
	if err != nil {
		return nil, err
	}
	var key *signing.Key
	if fsutil.PathExists(path) {
		key, err = signing.LoadKey(path)
	} else {
		key, err = signing.GenerateKey()
		if err == nil {
			err = key.SaveKey(path)
		}
	}
	if err != nil {
		return nil, err
	}
	return client.New(o.url, signing.NewSigner(key, nil),
		client.WithServerAccount(o.serverAccount),
		client.WithTimeout(o.timeout),
		client.WithRetries(o.retries),
	), nil
}

// readInputs builds named tensors from name=value arguments. A value
// starting with @ names a JSON tensor file; anything else is an image.
func readInputs(model types.Model, args []string) ([]tensor.Tensor, error) {
	out := make([]tensor.Tensor, 0, len(args))
	for _, arg := range args {
		name, value, ok := strings.Cut(arg, "=")
		if !ok || name == "" || value == "" {
			return nil, fmt.Errorf("input %q: want name=value", arg)
		}
		shape, ok := findShape(model.Inputs, name)
		if !ok {
			return nil, fmt.Errorf("input %q: model has no such input", name)
		}
		t, err := readInput(shape, value)
		if err != nil {
			return nil, fmt.Errorf("input %q: %w", name, err)
		}
		out = append(out, t)
	}
	return out, nil
}

func readInput(shape tensor.Shape, value string) (tensor.Tensor, error) {
	if file, ok := strings.CutPrefix(value, "@"); ok {
		b, err := os.ReadFile(file)
		if err != nil {
			return tensor.Tensor{}, err
		}
		var t tensor.Tensor
		if err := json.Unmarshal(b, &t); err != nil {
			return tensor.Tensor{}, err
		}
		return t.ToTensor(shape)
	}
	img, err := vision.Open(value)
	if err != nil {
		return tensor.Tensor{}, err
	}
	return img.ToTensor(shape)
}

func findShape(shapes []tensor.Shape, name string) (tensor.Shape, bool) {
	for _, s := range shapes {
		if s.Name == name {
			return s, true
		}
	}
	return tensor.Shape{}, false
}

func printTop(w io.Writer, outputs []tensor.Tensor, k int) error {
	for _, out := range outputs {
		cls, err := tensor.AsClass(out)
		if err != nil {
			fmt.Fprintf(w, "%s: %v\n", out.Name, err)
			continue
		}
		fmt.Fprintf(w, "%s:\n", out.Name)
		for _, s := range cls.TopK(k) {
			fmt.Fprintf(w, "  %6d  %.4f\n", s.Index, s.Probability)
		}
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}


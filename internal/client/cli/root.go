// internal/client/cli/root.go
package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"

	"translator-back/internal/client/config"
	"translator-back/pkg/apiclient"

	"github.com/spf13/cobra"
)

// env carries what every command needs once flags are parsed.
type env struct {
	cfg     *config.Config
	session *config.FileSession
	client  *apiclient.Client
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func NewRootCommand() *cobra.Command {
	var server string
	e := &env{}

	root := &cobra.Command{
		Use:           "translator",
		Short:         "Translate text and JSON documents with the translator API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return fmt.Errorf("error loading config: %w", err)
			}
			if server != "" && server != cfg.Server {
				cfg.Server = server
				if err := config.SaveConfig(cfg); err != nil {
					return fmt.Errorf("error saving config: %w", err)
				}
			}
			e.cfg = cfg
			e.session = config.NewFileSession(cfg)
			e.client, err = apiclient.New(cfg.Server, e.session)
			return err
		},
	}
	root.PersistentFlags().StringVar(&server, "server", "", "API base URL (saved for later commands)")

	root.AddCommand(
		signupCmd(e),
		loginCmd(e),
		logoutCmd(e),
		meCmd(e),
		translateCmd(e),
		jobsCmd(e),
		historyCmd(e),
		uploadCmd(e),
		downloadCmd(e),
	)
	return root
}

func signupCmd(e *env) *cobra.Command {
	var email, name, password string
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account and log in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := passwordOrPrompt(cmd, password)
			if err != nil {
				return err
			}
			if err := e.client.Signup(cmd.Context(), email, pw, name); err != nil {
				return err
			}
			e.cfg.Email = email
			if err := config.SaveConfig(e.cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed up as %s\n", email)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&password, "password", "", "password (prompted when omitted)")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func loginCmd(e *env) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := passwordOrPrompt(cmd, password)
			if err != nil {
				return err
			}
			u, err := e.client.Login(cmd.Context(), email, pw)
			if err != nil {
				return err
			}
			e.cfg.Email = u.Email
			if err := config.SaveConfig(e.cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s (%s)\n", u.Name, u.Email)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "password (prompted when omitted)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func logoutCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := e.client.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}

func meCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "me",
		Short: "Show the logged-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := e.client.Me(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", u.ID, u.Email, u.Name)
			return nil
		},
	}
}

func translateCmd(e *env) *cobra.Command {
	var (
		from, to, prompt, jobID, file string
		asJSON, backTranslate         bool
	)
	cmd := &cobra.Command{
		Use:   "translate [text]",
		Short: "Stream a translation to stdout",
		Long: "Translate text given as an argument, read from stdin, or uploaded from --file. " +
			"With --json the content must be a JSON document and only its string values are translated.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			var content, object string
			switch {
			case file != "":
				f, err := os.Open(file)
				if err != nil {
					return err
				}
				up, err := e.client.Upload(ctx, filepath.Base(file), f)
				f.Close()
				if err != nil {
					return err
				}
				object = up.ObjectName
			case len(args) == 1:
				content = args[0]
			default:
				b, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return err
				}
				content = string(b)
			}
			if object == "" && strings.TrimSpace(content) == "" {
				return errors.New("nothing to translate")
			}

			var (
				res *apiclient.TranslateResult
				err error
			)
			if asJSON {
				req := apiclient.TranslateJSONRequest{
					Source:           from,
					Target:           to,
					Prompt:           prompt,
					TranslationJobID: jobID,
					SourceObject:     object,
				}
				if content != "" {
					if !json.Valid([]byte(content)) {
						return errors.New("content is not valid JSON")
					}
					req.Content = json.RawMessage(content)
				}
				res, err = e.client.TranslateJSON(ctx, req, nil)
				if res != nil && res.Output != "" {
					fmt.Fprintln(out, res.Output)
				}
			} else {
				res, err = e.client.Translate(ctx, apiclient.TranslateRequest{
					Source:           from,
					Target:           to,
					Content:          content,
					Prompt:           prompt,
					TranslationJobID: jobID,
					SourceObject:     object,
					BackTranslate:    backTranslate,
				}, func(delta string) { fmt.Fprint(out, delta) })
				if res != nil && res.Output != "" {
					fmt.Fprintln(out)
				}
			}

			if res != nil {
				report(cmd.ErrOrStderr(), res)
			}
			return err
		},
	}
	cmd.Flags().StringVar(&from, "from", "Detect language", "source language")
	cmd.Flags().StringVar(&to, "to", "", "target language")
	cmd.Flags().StringVar(&prompt, "prompt", "", "extra context for the translator")
	cmd.Flags().StringVar(&jobID, "job", "", "continue an existing translation job")
	cmd.Flags().StringVar(&file, "file", "", "upload a .txt or .json file and translate it")
	cmd.Flags().BoolVar(&asJSON, "json", false, "translate a JSON document, keeping its structure")
	cmd.Flags().BoolVar(&backTranslate, "back-translate", false, "score the translation by translating it back")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func report(w io.Writer, res *apiclient.TranslateResult) {
	if res.JobID != "" {
		fmt.Fprintf(w, "job: %s\n", res.JobID)
	}
	if res.Similarity != nil {
		fmt.Fprintf(w, "back-translation similarity: %.2f\n", *res.Similarity)
	}
}

func jobsCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "jobs",
		Short: "List translation jobs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			jobs, err := e.client.Jobs(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tFORMAT\tSTATUS\tCREATED\tTITLE")
			for _, j := range jobs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", j.ID, j.Format, j.Status, j.CreatedAt.Local().Format("2006-01-02 15:04"), j.Title)
			}
			return tw.Flush()
		},
	}
}

func historyCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "history [job-id]",
		Short: "Show the conversation of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			msgs, err := e.client.History(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, m := range msgs {
				fmt.Fprintf(out, "[%s] %s\n", m.Role, m.Content)
			}
			return nil
		},
	}
}

func uploadCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "upload [file]",
		Short: "Upload a .txt or .json file for translation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			up, err := e.client.Upload(cmd.Context(), filepath.Base(args[0]), f)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), up.ObjectName)
			return nil
		},
	}
}

func downloadCmd(e *env) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "download [job-id]",
		Short: "Download the latest translation of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := e.client.Download(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if output == "" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			return os.WriteFile(output, data, 0644)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to a file instead of stdout")
	return cmd
}

func passwordOrPrompt(cmd *cobra.Command, password string) (string, error) {
	if password != "" {
		return password, nil
	}
	fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("password is required")
	}
	return line, nil
}

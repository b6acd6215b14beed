package commands

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/glasserstudy/glasser/internal/model"
	"github.com/glasserstudy/glasser/internal/service"
)

// Report targets.
const (
	reportPost    = "post"
	reportComment = "comment"
)

var (
	postsFilter service.PostFilter

	postSaveID        string
	postSaveTitle     string
	postSaveSubject   string
	postSaveDesc      string
	postSaveTags      []string
	postSaveMaterials []string

	commentDelete string

	reportReason    string
	reportDetails   string
	reportCommentID string
)

var postsCmd = &cobra.Command{
	Use:   "posts",
	Short: "Browse and share study posts",
	Long: `Browse and share study posts.

Materials are given as "name|link|type".

Examples:
  glasser posts list --search integrals --subject math
  glasser posts save --title "Integrals" --subject math --material "Notes|https://example.com/n.pdf|pdf"
  glasser posts comment <post-id> "Great summary"
  glasser posts report <post-id> --reason spam`,
}

var postsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List posts",
	Args:  cobra.NoArgs,
	RunE: withApp(true, func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
		posts, err := a.svc.Posts.List(ctx, postsFilter)
		if err != nil {
			return err
		}
		printResult(cmd.OutOrStdout(), posts, func(w io.Writer) {
			fmt.Fprint(w, formatPosts(posts, a.dict.T("posts.empty"), time.Now()))
		})
		return nil
	}),
}

var postsSaveCmd = &cobra.Command{
	Use:   "save",
	Short: "Create a post, or update one with --id",
	Args:  cobra.NoArgs,
	RunE:  withApp(true, runPostsSave),
}

var postsRemoveCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a post",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(true, func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
		return a.svc.Posts.Delete(ctx, args[0])
	}),
}

var postsLikeCmd = &cobra.Command{
	Use:   "like <id>",
	Short: "Like or unlike a post",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(true, func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
		return a.svc.Posts.ToggleLike(ctx, args[0])
	}),
}

var postsCommentsCmd = &cobra.Command{
	Use:   "comments <post-id>",
	Short: "List the comments of a post",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(true, func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
		comments, err := a.svc.Posts.Comments(ctx, args[0])
		if err != nil {
			return err
		}
		printResult(cmd.OutOrStdout(), comments, func(w io.Writer) {
			now := time.Now()
			for _, c := range comments {
				fmt.Fprintf(w, "%s  %s (%s): %s\n", c.ID, c.Author.Name, formatTimeAgo(c.CreatedAt, now), c.Content)
			}
		})
		return nil
	}),
}

var postsCommentCmd = &cobra.Command{
	Use:   "comment <post-id> [text]",
	Short: "Comment on a post, or delete a comment with --delete",
	Args:  cobra.MinimumNArgs(1),
	RunE:  withApp(true, runPostsComment),
}

var postsReportCmd = &cobra.Command{
	Use:   "report <post-id>",
	Short: "Report a post, or one of its comments with --comment",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(true, func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
		input := model.ReportInput{Entity: reportPost, EntityID: args[0], Reason: reportReason, Details: reportDetails}
		if reportCommentID != "" {
			input.Entity, input.EntityID = reportComment, reportCommentID
		}
		return a.svc.Posts.Report(ctx, input)
	}),
}

func init() {
	postsListCmd.Flags().StringVar(&postsFilter.SearchTerm, "search", "", "Search term")
	postsListCmd.Flags().StringVar(&postsFilter.SearchFilter, "filter", service.SearchFilterAll, "Field to search (title, subject, tags or tudo for all)")
	postsListCmd.Flags().StringVar(&postsFilter.Subject, "subject", "", "Only posts of this subject")
	postsListCmd.Flags().StringVar(&postsFilter.MaterialType, "material", "", "Only posts with this material type")

	postsSaveCmd.Flags().StringVar(&postSaveID, "id", "", "Post to update (omit to create)")
	postsSaveCmd.Flags().StringVar(&postSaveTitle, "title", "", "Post title")
	postsSaveCmd.Flags().StringVar(&postSaveSubject, "subject", "", "Post subject")
	postsSaveCmd.Flags().StringVar(&postSaveDesc, "description", "", "Post description")
	postsSaveCmd.Flags().StringArrayVar(&postSaveTags, "tag", nil, "Tag (repeatable)")
	postsSaveCmd.Flags().StringArrayVar(&postSaveMaterials, "material", nil, `Material as "name|link|type" (repeatable)`)

	postsCommentCmd.Flags().StringVar(&commentDelete, "delete", "", "Comment id to delete")

	postsReportCmd.Flags().StringVar(&reportReason, "reason", "", "Why you are reporting")
	postsReportCmd.Flags().StringVar(&reportDetails, "details", "", "Additional details")
	postsReportCmd.Flags().StringVar(&reportCommentID, "comment", "", "Report this comment instead of the post")

	postsCmd.AddCommand(postsListCmd, postsSaveCmd, postsRemoveCmd, postsLikeCmd, postsCommentsCmd, postsCommentCmd, postsReportCmd)
}

func formatPosts(posts []model.Post, empty string, now time.Time) string {
	if len(posts) == 0 {
		return empty + "\n"
	}
	var sb strings.Builder
	for _, p := range posts {
		fmt.Fprintf(&sb, "%s  %s [%s] by %s, %s\n", p.ID, p.Title, p.Subject, p.Author.Name, formatTimeAgo(p.CreatedAt, now))
		fmt.Fprintf(&sb, "  ♥ %d  💬 %d", p.LikesCount, p.CommentsCount)
		if len(p.Tags) > 0 {
			fmt.Fprintf(&sb, "  #%s", strings.Join(p.Tags, " #"))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func parseMaterials(specs []string) []model.Material {
	out := make([]model.Material, 0, len(specs))
	for _, s := range specs {
		parts := strings.SplitN(s, "|", 3)
		for len(parts) < 3 {
			parts = append(parts, "")
		}
		out = append(out, model.Material{
			Name: strings.TrimSpace(parts[0]),
			Link: strings.TrimSpace(parts[1]),
			Type: strings.TrimSpace(parts[2]),
		})
	}
	return out
}

func runPostsSave(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	post, err := a.svc.Posts.Save(ctx, model.PostInput{
		Title:       postSaveTitle,
		Subject:     postSaveSubject,
		Description: postSaveDesc,
		Tags:        postSaveTags,
		Materials:   parseMaterials(postSaveMaterials),
	}, postSaveID)
	if err != nil {
		return err
	}
	printResult(cmd.OutOrStdout(), post, func(w io.Writer) {
		fmt.Fprintf(w, "%s  %s\n", post.ID, post.Title)
	})
	return nil
}

func runPostsComment(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	postID := args[0]
	if commentDelete != "" {
		return a.svc.Posts.DeleteComment(ctx, postID, commentDelete)
	}
	c, err := a.svc.Posts.CreateComment(ctx, postID, strings.Join(args[1:], " "))
	if err != nil {
		return err
	}
	printResult(cmd.OutOrStdout(), c, func(w io.Writer) {
		fmt.Fprintf(w, "%s  %s\n", c.ID, c.Content)
	})
	return nil
}

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// --- files ---

var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "Manage uploaded documents",
}

var filesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List uploaded documents",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/files")
		if err != nil {
			return err
		}

		var files []struct {
			ID         int64  `json:"id"`
			Filename   string `json:"filename"`
			FileType   string `json:"file_type"`
			FileSize   int64  `json:"file_size"`
			UploadedAt string `json:"uploaded_at"`
			Processed  bool   `json:"processed"`
		}
		if err := decodeJSON(resp, &files); err != nil {
			return err
		}

		if len(files) == 0 {
			fmt.Println("No files uploaded.")
			return nil
		}

		for _, f := range files {
			status := "indexing"
			if f.Processed {
				status = "ready"
			}
			fmt.Printf("%s  %-10s %8d bytes  %-8s  %s\n",
				colorize(colorCyan, fmt.Sprintf("%4d", f.ID)),
				f.FileType,
				f.FileSize,
				status,
				f.Filename,
			)
		}
		return nil
	},
}

var filesUploadCmd = &cobra.Command{
	Use:   "upload <path>",
	Short: "Upload a document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.upload(cmd.Context(), "/files/upload", args[0])
		if err != nil {
			return err
		}

		var result struct {
			ID       int64  `json:"id"`
			Filename string `json:"filename"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Uploaded %s (id %d), indexing in background", result.Filename, result.ID)
		return nil
	},
}

var filesDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete an uploaded document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/files/"+args[0])
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Deleted file %s", args[0])
		return nil
	},
}

func init() {
	filesCmd.AddCommand(filesListCmd)
	filesCmd.AddCommand(filesUploadCmd)
	filesCmd.AddCommand(filesDeleteCmd)
}

// --- ask ---

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question over your documents",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.Join(args, " ")
		conversationID, _ := cmd.Flags().GetInt64("conversation")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		body := map[string]any{"query": question}
		if conversationID != 0 {
			body["conversation_id"] = conversationID
		}

		resp, err := client.post(cmd.Context(), "/query", body)
		if err != nil {
			return err
		}

		var result struct {
			Response string `json:"response"`
			Sources  []struct {
				Filename       string   `json:"filename"`
				RelevanceScore *float64 `json:"relevance_score"`
			} `json:"sources"`
			ConversationID int64 `json:"conversation_id"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		fmt.Println(result.Response)
		for _, s := range result.Sources {
			if s.RelevanceScore != nil {
				fmt.Printf("\n%s %s [%.2f]\n", colorize(colorBold, "Source:"), s.Filename, *s.RelevanceScore)
			} else {
				fmt.Printf("\n%s %s\n", colorize(colorBold, "Source:"), s.Filename)
			}
		}
		printStatus("Conversation", "%d", result.ConversationID)
		return nil
	},
}

func init() {
	askCmd.Flags().Int64("conversation", 0, "conversation id to continue")
}

// --- conversations ---

var conversationsCmd = &cobra.Command{
	Use:   "conversations",
	Short: "Manage conversation history",
}

var conversationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List conversations",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/conversations")
		if err != nil {
			return err
		}

		var convs []struct {
			ID        int64  `json:"id"`
			Title     string `json:"title"`
			UpdatedAt string `json:"updated_at"`
		}
		if err := decodeJSON(resp, &convs); err != nil {
			return err
		}

		if len(convs) == 0 {
			fmt.Println("No conversations yet.")
			return nil
		}

		for _, c := range convs {
			fmt.Printf("%s  %s  %s\n",
				colorize(colorCyan, fmt.Sprintf("%4d", c.ID)),
				c.UpdatedAt,
				c.Title,
			)
		}
		return nil
	},
}

var conversationsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/conversations/"+args[0])
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Deleted conversation %s", args[0])
		return nil
	},
}

func init() {
	conversationsCmd.AddCommand(conversationsListCmd)
	conversationsCmd.AddCommand(conversationsDeleteCmd)
}

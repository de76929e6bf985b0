package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/olekukonko/tablewriter"
)

// Standalone store inspector. Dumps message and conversation records in a
// readable table without going through the relay.
func main() {
	dbPath := flag.String("db", "/tmp/chat-relay", "Path to badger DB")
	// Default scans messages; use -prefix conv: for conversations.
	prefix := flag.String("prefix", "msg:", "Prefix to scan")
	flag.Parse()

	db, err := openDB(*dbPath)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "Type", "Timestamp", "Conversation", "Sender", "Content", "Read By"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(*prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			item := it.Item()
			rawKey := string(item.Key())

			// The msgid: entries only point back at primary keys.
			if strings.HasPrefix(rawKey, "msgid:") {
				continue
			}

			err := item.Value(func(v []byte) error {
				switch {
				case strings.HasPrefix(rawKey, "conv:"):
					appendConversation(table, rawKey, v)
				default:
					appendMessage(table, rawKey, v)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})

	if err != nil {
		log.Fatal(err)
	}

	table.Render()
}

type messageRow struct {
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
	ReadBy         []string  `json:"read_by"`
}

type conversationRow struct {
	Name      string    `json:"name"`
	Members   []string  `json:"members"`
	IsGroup   bool      `json:"is_group"`
	UpdatedAt time.Time `json:"updated_at"`
}

func appendMessage(table *tablewriter.Table, rawKey string, v []byte) {
	var row messageRow
	if err := json.Unmarshal(v, &row); err != nil {
		fmt.Printf("Error unmarshaling key %s: %v\n", rawKey, err)
		return
	}

	// First 8 characters of the conversation ID keep the column narrow.
	displayID := row.ConversationID
	if len(displayID) > 8 {
		displayID = displayID[:8]
	}

	table.Append([]string{
		rawKey,
		"MSG",
		row.CreatedAt.Format("15:04:05"),
		displayID,
		row.SenderID,
		row.Content,
		strings.Join(row.ReadBy, " "),
	})
}

func appendConversation(table *tablewriter.Table, rawKey string, v []byte) {
	var row conversationRow
	if err := json.Unmarshal(v, &row); err != nil {
		fmt.Printf("Error unmarshaling key %s: %v\n", rawKey, err)
		return
	}

	kind := "CHAT"
	if row.IsGroup {
		kind = "GROUP"
	}

	table.Append([]string{
		rawKey,
		kind,
		row.UpdatedAt.Format("15:04:05"),
		row.Name,
		"",
		fmt.Sprintf("%d members", len(row.Members)),
		strings.Join(row.Members, " "),
	})
}

func openDB(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true).
		WithValueLogFileSize(10 * 1024 * 1024)

	db, err := badger.Open(opts)
	if err != nil {
		// Si corruption détectée, essaie un open en write pour truncate
		if strings.Contains(err.Error(), "Log truncate required") {
			repairOpts := badger.DefaultOptions(path).
				WithLogger(nil).WithBypassLockGuard(true)

			db, err = badger.Open(repairOpts)
			if err != nil {
				return nil, fmt.Errorf("repair failed: %w", err)
			}

			db.Close()
			return badger.Open(opts)
		}
		return nil, err
	}
	return db, nil
}

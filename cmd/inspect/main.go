package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/olekukonko/tablewriter"

	"dm-lab/repositories"
)

// Dumps the message store to the terminal. Works against a live server
// thanks to the lock guard bypass.
func main() {
	dbPath := flag.String("db", "/tmp/dm-lab/badger", "Path to badger DB")
	// Par défaut on cherche "msg:" pour éviter de percuter les index msgid:
	prefix := flag.String("prefix", "msg:", "Prefix to scan")
	flag.Parse()

	db, err := openDB(*dbPath)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "Pair", "Timestamp", "Sender", "Text", "Image"})
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

			// Sécurité : on ignore explicitement les index secondaires
			if strings.HasPrefix(string(item.Key()), "msgid:") {
				continue
			}

			err := item.Value(func(v []byte) error {
				var doc struct {
					SenderID string `json:"sender_id"`
					Text     string `json:"text"`
					ImageURL string `json:"image_url"`
				}
				if err := json.Unmarshal(v, &doc); err != nil {
					// Au lieu de stopper tout le script, on log l'erreur et on continue
					fmt.Printf("Error unmarshaling key %s: %v\n", string(item.Key()), err)
					return nil
				}

				rawKey := string(item.Key())
				pair, ts, _, ok := repositories.SplitKey(rawKey)
				if !ok {
					pair, ts = "-", "-"
				}

				text := doc.Text
				if len(text) > 40 {
					text = text[:40] + "..."
				}
				image := ""
				if doc.ImageURL != "" {
					image = "yes"
				}

				table.Append([]string{
					rawKey,
					pair,
					formatNano(ts),
					doc.SenderID,
					text,
					image,
				})
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

func formatNano(ts string) string {
	nanos, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return ts
	}
	return time.Unix(0, nanos).UTC().Format("15:04:05")
}

func openDB(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true).
		WithValueLogFileSize(10 * 1024 * 1024)

	return badger.Open(opts)
}

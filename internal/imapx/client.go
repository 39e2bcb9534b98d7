// Package imapx wraps the IMAP client used to pull probe messages from the
// watched mailbox.
package imapx

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"

	imapv2 "github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
)

// Options holds IMAP connection configuration
type Options struct {
	Host               string
	Port               int
	Username           string
	Password           string
	UseTLS             bool
	InsecureSkipVerify bool
	Mailbox            string
}

// Fetched describes one unread message pulled from the mailbox: envelope
// metadata plus the full raw source.
type Fetched struct {
	SeqNum    uint32
	Subject   string
	MessageID string
	From      string
	To        string
	Source    []byte
}

// Client is an authenticated IMAP session with the target mailbox selected.
// The embedded advisory lock serializes this process's own traversal of the
// mailbox message list; it does not coordinate with other processes.
type Client struct {
	opts   Options
	conn   *imapclient.Client
	logger *slog.Logger

	lock sync.Mutex
}

// Dial connects, authenticates, and selects the configured mailbox. When
// the configured mailbox cannot be opened, it falls back to INBOX before
// giving up.
func Dial(opts Options, logger *slog.Logger) (*Client, error) {
	if opts.Host == "" {
		return nil, fmt.Errorf("imap host is empty")
	}
	if opts.Port <= 0 {
		return nil, fmt.Errorf("imap port must be positive")
	}
	if logger == nil {
		logger = slog.Default()
	}

	address := net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port))
	options := &imapclient.Options{}

	var (
		conn *imapclient.Client
		err  error
	)
	if opts.UseTLS {
		options.TLSConfig = &tls.Config{
			ServerName:         opts.Host,
			InsecureSkipVerify: opts.InsecureSkipVerify,
		}
		conn, err = imapclient.DialTLS(address, options)
	} else {
		conn, err = imapclient.DialInsecure(address, options)
	}
	if err != nil {
		return nil, fmt.Errorf("dial imap %s: %w", address, err)
	}

	if err := conn.Login(opts.Username, opts.Password).Wait(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("imap login failed: %w", err)
	}

	c := &Client{opts: opts, conn: conn, logger: logger}
	if err := c.selectMailbox(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	logger.Debug("imap connection established",
		slog.String("address", address),
		slog.String("user", opts.Username),
		slog.String("mailbox", c.mailbox()),
		slog.Bool("tls", opts.UseTLS),
	)

	return c, nil
}

// selectMailbox opens the configured mailbox, falling back to INBOX when it
// does not exist.
func (c *Client) selectMailbox() error {
	target := c.mailbox()
	if _, err := c.conn.Select(target, nil).Wait(); err != nil {
		if target == "INBOX" {
			return fmt.Errorf("select mailbox %s: %w", target, err)
		}
		c.logger.Warn("mailbox not found, falling back to INBOX",
			slog.String("mailbox", target),
			slog.String("error", err.Error()),
		)
		if _, err := c.conn.Select("INBOX", nil).Wait(); err != nil {
			return fmt.Errorf("select mailbox INBOX: %w", err)
		}
	}
	return nil
}

// Lock acquires the in-process mailbox lock. Callers must release it with
// Unlock on every path.
func (c *Client) Lock() { c.lock.Lock() }

// Unlock releases the in-process mailbox lock.
func (c *Client) Unlock() { c.lock.Unlock() }

// FetchUnread returns every message in the mailbox not yet flagged \Seen,
// with envelope metadata and the full raw source.
func (c *Client) FetchUnread() ([]Fetched, error) {
	criteria := &imapv2.SearchCriteria{
		NotFlag: []imapv2.Flag{imapv2.FlagSeen},
	}
	searchData, err := c.conn.Search(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("search unseen: %w", err)
	}

	seqNums := searchData.AllSeqNums()
	if len(seqNums) == 0 {
		return nil, nil
	}

	bodySection := &imapv2.FetchItemBodySection{}
	fetchOptions := &imapv2.FetchOptions{
		Envelope:    true,
		BodySection: []*imapv2.FetchItemBodySection{bodySection},
	}

	seqSet := imapv2.SeqSetNum(seqNums...)
	buffers, err := c.conn.Fetch(seqSet, fetchOptions).Collect()
	if err != nil {
		return nil, fmt.Errorf("fetch messages: %w", err)
	}

	fetched := make([]Fetched, 0, len(buffers))
	for _, buf := range buffers {
		f := Fetched{
			SeqNum: buf.SeqNum,
			Source: buf.FindBodySection(bodySection),
		}
		if env := buf.Envelope; env != nil {
			f.Subject = env.Subject
			f.MessageID = env.MessageID
			f.From = formatAddressList(env.From)
			f.To = formatAddressList(env.To)
		}
		fetched = append(fetched, f)
	}

	return fetched, nil
}

// MarkSeen flags one message \Seen so the next poll cycle skips it.
func (c *Client) MarkSeen(seqNum uint32) error {
	flags := &imapv2.StoreFlags{
		Op:     imapv2.StoreFlagsAdd,
		Silent: true,
		Flags:  []imapv2.Flag{imapv2.FlagSeen},
	}
	if err := c.conn.Store(imapv2.SeqSetNum(seqNum), flags, nil).Close(); err != nil {
		return fmt.Errorf("store seen flag: %w", err)
	}
	return nil
}

// Close logs out and tears down the connection. Safe to call after a
// connection loss; the logout failure is only logged.
func (c *Client) Close() {
	if err := c.conn.Logout().Wait(); err != nil {
		c.logger.Debug("imap logout failed", slog.String("error", err.Error()))
	}
	if err := c.conn.Close(); err != nil {
		c.logger.Debug("imap connection closed", slog.String("error", err.Error()))
	}
}

func (c *Client) mailbox() string {
	if c.opts.Mailbox == "" {
		return "INBOX"
	}
	return c.opts.Mailbox
}

// formatAddressList renders envelope addresses the way they appear in an
// address header: "Name <user@host>", comma separated.
func formatAddressList(addrs []imapv2.Address) string {
	parts := make([]string, 0, len(addrs))
	for _, a := range addrs {
		if a.Name != "" {
			parts = append(parts, fmt.Sprintf("%s <%s>", a.Name, a.Addr()))
		} else {
			parts = append(parts, a.Addr())
		}
	}
	return strings.Join(parts, ",")
}

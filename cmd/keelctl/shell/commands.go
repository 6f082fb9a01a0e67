package shell

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/keelfs/keeld/pkg/client"
)

// verbHandler is one shell verb's implementation; args are already
// stripped of the verb word itself.
type verbHandler func(*Shell, []string) error

var verbs = map[string]verbHandler{
	"HEARTBEAT":   cmdHeartbeat,
	"AUTH":        cmdAuth,
	"STERM":       cmdSterm,
	"SREF":        cmdSref,
	"UNEW":        cmdUnew,
	"UDEL":        cmdUdel,
	"CREATE":      cmdCreate,
	"DELETE":      cmdDelete,
	"READ":        cmdRead,
	"REPLACE":     cmdReplace,
	"PATCH":       cmdPatch,
	"APPEND":      cmdAppend,
	"UPLOAD":      cmdUpload,
	"PATCHFROM":   cmdPatchFrom,
	"REPLACEFROM": cmdReplaceFrom,
	"GRANT":       cmdGrant,
	"REVOKE":      cmdRevoke,
	"TRANSFER":    cmdTransfer,
	"PUBLICISE":   cmdPublicise,
	"HIDE":        cmdHide,
	"QUERY":       cmdQuery,
	"BYE":         cmdBye,
}

func need(args []string, n int, usage string) error {
	if len(args) < n {
		return fmt.Errorf("usage: %s", usage)
	}
	return nil
}

func cmdHeartbeat(sh *Shell, args []string) error {
	_, m, err := parseArgs("HEARTBEAT", args)
	if err != nil {
		return err
	}
	resp, err := sh.client.Heartbeat(m.bye)
	if err != nil {
		return err
	}
	fmt.Println(resp.Code, resp.Description)
	return nil
}

func cmdAuth(sh *Shell, args []string) error {
	pos, m, err := parseArgs("AUTH", args)
	if err != nil {
		return err
	}
	if err := need(pos, 2, "AUTH <identity> <password>"); err != nil {
		return err
	}
	session, _, err := sh.client.Login(pos[0], pos[1])
	if err != nil {
		return err
	}
	fmt.Printf("authenticated as %s (iteration %d)\n", pos[0], session.Iteration)
	if m.displayCreds {
		printPairs([][2]string{
			{"token", hex.EncodeToString(session.Token)},
			{"refresh_digest", hex.EncodeToString(session.RefreshDigest)},
			{"valid_until", formatUnix(session.ValidUntil)},
		})
	}
	return nil
}

func cmdSterm(sh *Shell, args []string) error {
	_, m, err := parseArgs("STERM", args)
	if err != nil {
		return err
	}
	resp, err := sh.client.Logout(m.bye)
	if err != nil {
		return err
	}
	fmt.Println(resp.Code, resp.Description)
	return nil
}

func cmdSref(sh *Shell, args []string) error {
	_, m, err := parseArgs("SREF", args)
	if err != nil {
		return err
	}
	session, _, err := sh.client.Refresh()
	if err != nil {
		return err
	}
	fmt.Printf("refreshed (iteration %d)\n", session.Iteration)
	if m.displayCreds {
		printPairs([][2]string{
			{"refresh_digest", hex.EncodeToString(session.RefreshDigest)},
			{"valid_until", formatUnix(session.ValidUntil)},
		})
	}
	return nil
}

func cmdUnew(sh *Shell, args []string) error {
	pos, _, err := parseArgs("UNEW", args)
	if err != nil {
		return err
	}
	if err := need(pos, 2, "UNEW <identity> <password>"); err != nil {
		return err
	}
	resp, err := sh.client.Register(pos[0], pos[1])
	if err != nil {
		return err
	}
	fmt.Println(resp.Code, resp.Description)
	return nil
}

func cmdUdel(sh *Shell, args []string) error {
	pos, _, err := parseArgs("UDEL", args)
	if err != nil {
		return err
	}
	if err := need(pos, 1, "UDEL <password>"); err != nil {
		return err
	}
	resp, err := sh.client.DeleteUser(pos[0])
	if err != nil {
		return err
	}
	fmt.Println(resp.Code, resp.Description)
	return nil
}

func cmdCreate(sh *Shell, args []string) error {
	pos, _, err := parseArgs("CREATE", args)
	if err != nil {
		return err
	}
	if err := need(pos, 2, "CREATE <owner> <filename>"); err != nil {
		return err
	}
	result, err := sh.client.Create(pos[0], pos[1])
	if err != nil {
		return err
	}
	fmt.Println(result.Response.Code, result.Response.Description)
	return nil
}

func cmdDelete(sh *Shell, args []string) error {
	pos, _, err := parseArgs("DELETE", args)
	if err != nil {
		return err
	}
	if err := need(pos, 2, "DELETE <owner> <filename>"); err != nil {
		return err
	}
	resp, err := sh.client.Delete(pos[0], pos[1])
	if err != nil {
		return err
	}
	fmt.Println(resp.Code, resp.Description)
	return nil
}

func cmdRead(sh *Shell, args []string) error {
	pos, m, err := parseArgs("READ", args)
	if err != nil {
		return err
	}
	if err := need(pos, 2, "READ <owner> <filename>"); err != nil {
		return err
	}
	owner, filename := pos[0], pos[1]
	cursor := m.pos

	var out []byte
	for {
		remaining := m.limit - int64(len(out))
		if m.limit > 0 && remaining <= 0 {
			break
		}
		size := m.chunkSize
		if m.limit > 0 && int64(size) > remaining {
			size = int(remaining)
		}
		result, err := sh.client.ReadChunk(owner, filename, cursor, size, true)
		if err != nil {
			return err
		}
		if m.chunked {
			fmt.Printf("[%d..%d] %s\n", cursor, result.CursorPosition, string(result.Data))
		} else {
			out = append(out, result.Data...)
		}
		cursor = result.CursorPosition
		if result.EOF {
			break
		}
	}
	if !m.chunked {
		fmt.Println(string(out))
	}
	return nil
}

func cmdReplace(sh *Shell, args []string) error {
	pos, m, err := parseArgs("REPLACE", args)
	if err != nil {
		return err
	}
	if err := need(pos, 3, "REPLACE <owner> <filename> <data...>"); err != nil {
		return err
	}
	data := strings.Join(pos[2:], " ")
	if err := sh.client.Replace(pos[0], pos[1], []byte(data), m.chunkSize, m.postKeepalive); err != nil {
		return err
	}
	fmt.Println("replaced", pos[1])
	return nil
}

func cmdPatch(sh *Shell, args []string) error {
	pos, m, err := parseArgs("PATCH", args)
	if err != nil {
		return err
	}
	if err := need(pos, 3, "PATCH <owner> <filename> <data...>"); err != nil {
		return err
	}
	data := strings.Join(pos[2:], " ")
	result, err := sh.client.WriteChunk(pos[0], pos[1], []byte(data), m.pos, true, m.postKeepalive, m.postKeepalive)
	if err != nil {
		return err
	}
	fmt.Println(result.Response.Code, "new cursor", result.CursorPosition)
	return nil
}

func cmdAppend(sh *Shell, args []string) error {
	pos, m, err := parseArgs("APPEND", args)
	if err != nil {
		return err
	}
	if err := need(pos, 3, "APPEND <owner> <filename> <data...>"); err != nil {
		return err
	}
	data := strings.Join(pos[2:], " ")
	result, err := sh.client.AppendChunk(pos[0], pos[1], []byte(data), true, m.postKeepalive, m.postKeepalive)
	if err != nil {
		return err
	}
	fmt.Println(result.Response.Code, "new cursor", result.CursorPosition)
	return nil
}

func cmdUpload(sh *Shell, args []string) error {
	pos, m, err := parseArgs("UPLOAD", args)
	if err != nil {
		return err
	}
	if err := need(pos, 3, "UPLOAD <owner> <filename> <local-path>"); err != nil {
		return err
	}
	data, err := os.ReadFile(pos[2])
	if err != nil {
		return fmt.Errorf("read local file: %w", err)
	}
	if _, err := sh.client.Create(pos[0], pos[1]); err != nil {
		return err
	}
	if err := sh.client.Write(pos[0], pos[1], data, m.chunkSize, m.postKeepalive); err != nil {
		return err
	}
	fmt.Printf("uploaded %d bytes to %s/%s\n", len(data), pos[0], pos[1])
	return nil
}

func cmdPatchFrom(sh *Shell, args []string) error {
	pos, m, err := parseArgs("PATCHFROM", args)
	if err != nil {
		return err
	}
	if err := need(pos, 3, "PATCHFROM <owner> <filename> <local-path>"); err != nil {
		return err
	}
	data, err := os.ReadFile(pos[2])
	if err != nil {
		return fmt.Errorf("read local file: %w", err)
	}
	cursor := m.pos
	for off := 0; off < len(data) || len(data) == 0; {
		hi := off + m.chunkSize
		if hi > len(data) {
			hi = len(data)
		}
		end := hi >= len(data)
		if _, err := sh.client.WriteChunk(pos[0], pos[1], data[off:hi], cursor, end, !end, m.postKeepalive); err != nil {
			return err
		}
		cursor += int64(hi - off)
		off = hi
		if end {
			break
		}
	}
	fmt.Printf("patched %d bytes into %s/%s starting at %d\n", len(data), pos[0], pos[1], m.pos)
	return nil
}

func cmdReplaceFrom(sh *Shell, args []string) error {
	pos, m, err := parseArgs("REPLACEFROM", args)
	if err != nil {
		return err
	}
	if err := need(pos, 3, "REPLACEFROM <owner> <filename> <local-path>"); err != nil {
		return err
	}
	data, err := os.ReadFile(pos[2])
	if err != nil {
		return fmt.Errorf("read local file: %w", err)
	}
	if err := sh.client.Replace(pos[0], pos[1], data, m.chunkSize, m.postKeepalive); err != nil {
		return err
	}
	fmt.Printf("replaced %s/%s with %d bytes from %s\n", pos[0], pos[1], len(data), pos[2])
	return nil
}

func parseRole(s string) (client.Role, error) {
	switch strings.ToLower(s) {
	case "reader":
		return client.RoleReader, nil
	case "editor":
		return client.RoleEditor, nil
	case "manager":
		return client.RoleManager, nil
	default:
		return "", fmt.Errorf("unknown role %q (want reader, editor, or manager)", s)
	}
}

func cmdGrant(sh *Shell, args []string) error {
	pos, _, err := parseArgs("GRANT", args)
	if err != nil {
		return err
	}
	if err := need(pos, 4, "GRANT <owner> <filename> <subject-user> <role> [duration-seconds]"); err != nil {
		return err
	}
	role, err := parseRole(pos[3])
	if err != nil {
		return err
	}
	var duration time.Duration
	if len(pos) > 4 {
		secs, err := strconv.ParseInt(pos[4], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid duration-seconds: %w", err)
		}
		duration = time.Duration(secs) * time.Second
	}
	resp, err := sh.client.Grant(pos[0], pos[1], pos[2], role, duration)
	if err != nil {
		return err
	}
	fmt.Println(resp.Code, resp.Description)
	return nil
}

func cmdRevoke(sh *Shell, args []string) error {
	pos, _, err := parseArgs("REVOKE", args)
	if err != nil {
		return err
	}
	if err := need(pos, 3, "REVOKE <owner> <filename> <subject-user>"); err != nil {
		return err
	}
	resp, err := sh.client.Revoke(pos[0], pos[1], pos[2])
	if err != nil {
		return err
	}
	fmt.Println(resp.Code, resp.Description)
	return nil
}

func cmdTransfer(sh *Shell, args []string) error {
	pos, _, err := parseArgs("TRANSFER", args)
	if err != nil {
		return err
	}
	if err := need(pos, 3, "TRANSFER <owner> <filename> <new-owner>"); err != nil {
		return err
	}
	result, err := sh.client.Transfer(pos[0], pos[1], pos[2])
	if err != nil {
		return err
	}
	fmt.Printf("transferred to %s/%s\n", result.NewOwner, result.NewFilename)
	return nil
}

func cmdPublicise(sh *Shell, args []string) error {
	pos, _, err := parseArgs("PUBLICISE", args)
	if err != nil {
		return err
	}
	if err := need(pos, 2, "PUBLICISE <owner> <filename>"); err != nil {
		return err
	}
	resp, err := sh.client.Publicise(pos[0], pos[1])
	if err != nil {
		return err
	}
	fmt.Println(resp.Code, resp.Description)
	return nil
}

func cmdHide(sh *Shell, args []string) error {
	pos, _, err := parseArgs("HIDE", args)
	if err != nil {
		return err
	}
	if err := need(pos, 2, "HIDE <owner> <filename>"); err != nil {
		return err
	}
	resp, err := sh.client.Hide(pos[0], pos[1])
	if err != nil {
		return err
	}
	fmt.Println(resp.Code, resp.Description)
	return nil
}

func cmdQuery(sh *Shell, args []string) error {
	pos, _, err := parseArgs("QUERY", args)
	if err != nil {
		return err
	}
	if err := need(pos, 1, "QUERY <permission|file|user|storage|ssl> [owner] [filename]"); err != nil {
		return err
	}

	switch strings.ToLower(pos[0]) {
	case "permission":
		if err := need(pos, 3, "QUERY permission <owner> <filename>"); err != nil {
			return err
		}
		grants, err := sh.client.InfoPermission(pos[1], pos[2])
		if err != nil {
			return err
		}
		rows := make([][]string, 0, len(grants))
		for _, g := range grants {
			until := "-"
			if g.GrantedUntil > 0 {
				until = formatUnix(g.GrantedUntil)
			}
			rows = append(rows, []string{g.Grantee, g.Role, g.GrantedBy, formatUnix(g.GrantedAt), until})
		}
		printTable([]string{"GRANTEE", "ROLE", "GRANTED_BY", "GRANTED_AT", "GRANTED_UNTIL"}, rows)

	case "file":
		if err := need(pos, 3, "QUERY file <owner> <filename>"); err != nil {
			return err
		}
		meta, err := sh.client.InfoFileMetadata(pos[1], pos[2])
		if err != nil {
			return err
		}
		printPairs([][2]string{
			{"owner", meta.Owner},
			{"filename", meta.Filename},
			{"public", strconv.FormatBool(meta.Public)},
			{"file_size", strconv.FormatInt(meta.FileSize, 10)},
			{"created_at", formatUnix(meta.CreatedAt)},
		})

	case "user":
		username := ""
		if len(pos) > 1 {
			username = pos[1]
		}
		meta, err := sh.client.InfoUserMetadata(username)
		if err != nil {
			return err
		}
		printPairs([][2]string{
			{"username", meta.Username},
			{"file_count", strconv.FormatInt(meta.FileCount, 10)},
			{"storage_used", strconv.FormatInt(meta.StorageUsed, 10)},
		})

	case "storage":
		usage, err := sh.client.InfoStorageUsage()
		if err != nil {
			return err
		}
		printPairs([][2]string{
			{"file_count", strconv.FormatInt(usage.FileCount, 10)},
			{"storage_used", strconv.FormatInt(usage.StorageUsed, 10)},
		})

	case "ssl":
		creds, err := sh.client.InfoSSLCredentials()
		if err != nil {
			return err
		}
		printPairs([][2]string{{"fingerprint", creds.Fingerprint}})
		if len(creds.Ledger) > 0 {
			rows := make([][]string, 0, len(creds.Ledger))
			for _, e := range creds.Ledger {
				rows = append(rows, []string{e.OldCertFingerprint, e.NewPubKeyHash, formatUnix(e.IssuedAt), e.Reason})
			}
			printTable([]string{"OLD_FINGERPRINT", "NEW_PUBKEY_HASH", "ISSUED_AT", "REASON"}, rows)
		}

	default:
		return fmt.Errorf("unknown QUERY type %q", pos[0])
	}
	return nil
}

func cmdBye(sh *Shell, args []string) error {
	if sh.client.Identity() != "" {
		if _, err := sh.client.Logout(true); err != nil {
			return err
		}
	}
	fmt.Println("bye")
	return nil
}

func formatUnix(seconds float64) string {
	if seconds <= 0 {
		return "-"
	}
	return time.Unix(int64(seconds), 0).UTC().Format(time.RFC3339)
}

package wire

import (
	"fmt"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"

	"Covenant/internal/ledger"
)

// Dump renders an encoded transaction as an indented tree. data may be a bare
// transaction or a signed envelope. Payload descriptors are resolved to type
// names through r, then through the name table a signed envelope carries;
// a table name is used only when it hashes to the descriptor. Bodies are
// printed in CBOR diagnostic notation, so Dump needs no payload Go types.
func Dump(data []byte, r *Registry) (string, error) {
	d := &dumper{registry: r, names: make(map[string]string)}

	if IsSigned(data) {
		st, err := DecodeSigned(data)
		if err != nil {
			return "", err
		}

		for _, name := range st.Names {
			d.names[Descriptor(name)] = name
		}

		d.line("signed transaction (%d signatures)", len(st.Signatures))
		d.in()
		d.list("signatures", len(st.Signatures), func(i int) { d.text(st.Signatures[i].Signer.String()) })
		data = st.Tx
	}

	var w wireTx
	if err := Unmarshal(data, &w); err != nil {
		return "", fmt.Errorf("%w:\n%w", ErrMalformed, err)
	}

	d.line("transaction %s (format %d)", ledger.HashOf(data), w.Version)
	d.in()

	d.list("inputs", len(w.Inputs), func(i int) { d.text(w.Inputs[i].ref().String()) })
	d.list("references", len(w.References), func(i int) { d.text(w.References[i].ref().String()) })
	d.list("outputs", len(w.Outputs), func(i int) { d.state(w.Outputs[i]) })
	d.list("commands", len(w.Commands), func(i int) { d.command(w.Commands[i]) })
	d.list("attachments", len(w.Attachments), func(i int) { d.text(w.Attachments[i].String()) })

	d.line("notary: %s", d.key(w.Notary))

	if w.Window != nil {
		d.line("time window: %s .. %s", micros(w.Window.From), micros(w.Window.Until))
	}

	return d.sb.String(), nil
}

type dumper struct {
	registry *Registry
	names    map[string]string // names maps descriptors from an envelope's name table
	sb       strings.Builder
	indent   int
}

func (d *dumper) in()  { d.indent += 2 }
func (d *dumper) out() { d.indent -= 2 }

func (d *dumper) line(format string, args ...any) {
	d.sb.WriteString(strings.Repeat(" ", d.indent))
	fmt.Fprintf(&d.sb, format, args...)
	d.sb.WriteByte('\n')
}

// text writes the remainder of a numbered line.
func (d *dumper) text(s string) {
	d.sb.WriteString(s)
	d.sb.WriteByte('\n')
}

// list writes a numbered sequence. item must start by completing the current line.
func (d *dumper) list(name string, n int, item func(i int)) {
	if n == 0 {
		d.line("%s: []", name)
		return
	}

	d.line("%s: [", name)
	d.in()

	for i := range n {
		number := fmt.Sprintf("%d. ", i)
		d.sb.WriteString(strings.Repeat(" ", d.indent))
		d.sb.WriteString(number)

		d.indent += len(number)
		item(i)
		d.indent -= len(number)
	}

	d.out()
	d.line("]")
}

func (d *dumper) state(s wireState) {
	d.text(d.typeName(s.Data.Descriptor))
	d.line("contract: %s", s.Contract)
	d.line("notary: %s", d.key(s.Notary))
	d.line("constraint: %s", d.constraint(s.Constraint))
	d.line("data: %s", diagnose(s.Data.Body))
}

func (d *dumper) command(c wireCommand) {
	d.text(d.typeName(c.Value.Descriptor))

	signers := make([]string, len(c.Signers))
	for i, k := range c.Signers {
		signers[i] = d.key(k)
	}

	d.line("signers: [%s]", strings.Join(signers, ", "))
	d.line("value: %s", diagnose(c.Value.Body))
}

func (d *dumper) typeName(desc string) string {
	if d.registry != nil {
		if name, ok := d.registry.Name(desc); ok {
			return name
		}
	}

	if name, ok := d.names[desc]; ok {
		return name
	}

	return "<unknown " + desc + ">"
}

func (d *dumper) key(w wireKey) string {
	k, err := w.key()
	if err != nil {
		return fmt.Sprintf("<invalid key: %v>", err)
	}

	return k.String()
}

func (d *dumper) constraint(w wireConstraint) string {
	c, err := w.constraint()
	if err != nil {
		return fmt.Sprintf("<invalid constraint: %v>", err)
	}

	return c.String()
}

func diagnose(body []byte) string {
	s, err := cbor.Diagnose(body)
	if err != nil {
		return fmt.Sprintf("<undecodable: %v>", err)
	}

	return s
}

func micros(v *int64) string {
	if v == nil {
		return "open"
	}

	return time.UnixMicro(*v).UTC().Format(time.RFC3339Nano)
}

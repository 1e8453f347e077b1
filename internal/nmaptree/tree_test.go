package nmaptree

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anstrom/scanvault/internal/errors"
	"github.com/anstrom/scanvault/internal/report"
)

func TestLoad_AgreesWithStreamingLoader(t *testing.T) {
	data, err := os.ReadFile(filepath.Join("..", "report", "testdata", "test-scan.xml"))
	require.NoError(t, err)

	streamed, err := report.ParseAndLoad(data)
	require.NoError(t, err)
	tree, err := Load(data)
	require.NoError(t, err)

	require.Len(t, tree.Hosts, 27)
	assert.Equal(t, streamed, tree)
}

func TestLoad_Documents(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		code errors.ErrorCode
	}{
		{
			name: "zero hosts",
			doc:  `<nmaprun scanner="nmap" args="nmap x" start="1587479712" version="7.80"><runstats><finished time="1587479713" exit="success"/><hosts up="0" down="1" total="1"/></runstats></nmaprun>`,
		},
		{
			name: "script tables",
			doc: `<nmaprun scanner="nmap"><host><status state="up"/><ports><port protocol="tcp" portid="22"><state state="open"/>` +
				`<script id="ssh-hostkey" output="k"><table><elem key="bits">2048</elem></table><table key="ecdsa"><elem key="bits">256</elem></table></script>` +
				`</port></ports></host></nmaprun>`,
		},
		{
			name: "service without confidence",
			doc: `<nmaprun scanner="nmap"><host><status state="up"/><ports><port protocol="tcp" portid="80"><state state="open"/>` +
				`<service name="http"/></port></ports></host></nmaprun>`,
		},
		{
			name: "paused host",
			doc:  `<nmaprun scanner="nmap"><host><status state="paused"/></host></nmaprun>`,
			code: errors.CodeInvalidEnum,
		},
		{
			name: "host without status",
			doc:  `<nmaprun scanner="nmap"><host></host></nmaprun>`,
			code: errors.CodeMissingField,
		},
		{
			name: "mac address",
			doc:  `<nmaprun scanner="nmap"><host><status state="up"/><address addr="AA:BB:CC:DD:EE:FF" addrtype="mac"/></host></nmaprun>`,
			code: errors.CodeInvalidValue,
		},
		{
			name: "missing scanner",
			doc:  `<nmaprun version="7.80"></nmaprun>`,
			code: errors.CodeMissingField,
		},
		{
			name: "not xml",
			doc:  `{"scanner":"nmap"}`,
			code: errors.CodeMalformedDocument,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree, err := Load([]byte(tt.doc))
			if tt.code != "" {
				require.Error(t, err)
				assert.Equal(t, tt.code, errors.GetCode(err), "error: %v", err)
				return
			}
			require.NoError(t, err)

			streamed, err := report.ParseAndLoad([]byte(tt.doc))
			require.NoError(t, err)
			assert.Equal(t, streamed, tree)
		})
	}
}

func TestLoad_ServiceConfidence(t *testing.T) {
	doc := `<nmaprun scanner="nmap"><host><status state="up"/><ports>` +
		`<port protocol="tcp" portid="80"><state state="open"/><service name="http"/></port>` +
		`<port protocol="tcp" portid="22"><state state="open"/><service name="ssh" method="probed" conf="10"/></port>` +
		`</ports></host></nmaprun>`

	result, err := Load([]byte(doc))
	require.NoError(t, err)
	require.Len(t, result.Hosts, 1)
	ports := result.Hosts[0].Ports
	require.Len(t, ports, 2)

	assert.Nil(t, ports[0].Service.Confidence)
	require.NotNil(t, ports[1].Service.Confidence)
	assert.Equal(t, 10, *ports[1].Service.Confidence)
}

package workspace

import (
	"bytes"
	"testing"

	"github.com/matryer/is"
)

func TestLoadConfig(t *testing.T) {
	is, config := setupConfigTest(t)

	is.Equal(config.URI, "urn:diwise:workspace:test")
	is.Equal(len(config.Classes), 2) // should have two classes
}

func TestLoadNotifierConfig(t *testing.T) {
	is, config := setupConfigTest(t)

	is.True(config.Notifier.Enabled)
	is.Equal(config.Notifier.Endpoint, "http://lolcathost:1234/notify")
}

func TestLoadClass(t *testing.T) {
	is, config := setupConfigTest(t)
	cc := config.Classes[0]

	c, err := cc.Class()
	is.NoErr(err)

	is.Equal(c.Name(), "Library")
	is.Equal(c.FeatureCount(), 3)

	books, idx := c.Feature("books")
	is.Equal(idx, 1)
	is.True(books.IsContainment())
	is.True(books.IsMany())

	featured, _ := c.Feature("featured")
	is.True(featured.IsReference())
	is.True(!featured.IsContainment())
}

func TestLoadLayouts(t *testing.T) {
	is, config := setupConfigTest(t)

	decorators, err := config.Classes[0].Decorators()
	is.NoErr(err)
	is.Equal(len(decorators), 3) // permissive should imply owner and dynamic fields

	decorators, err = config.Classes[1].Decorators()
	is.NoErr(err)
	is.Equal(len(decorators), 1) // minimal is the default, but still follows its class

	decorators, err = ClassConfig{Name: "Book", Layout: "fixed"}.Decorators()
	is.NoErr(err)
	is.Equal(len(decorators), 1)
}

func TestUnsupportedKindsAndLayoutsAreRejected(t *testing.T) {
	is := is.New(t)

	_, err := FeatureConfig{Name: "color", Kind: "paint"}.Feature()
	is.True(err != nil)

	_, err = FeatureConfig{Kind: "attribute"}.Feature()
	is.True(err != nil) // features need a name

	_, err = ClassConfig{Name: "Book", Layout: "sparse"}.Decorators()
	is.True(err != nil)
}

func TestDefaultURI(t *testing.T) {
	is := is.New(t)

	config, err := LoadConfiguration(bytes.NewBufferString("classes: []\n"))
	is.NoErr(err)
	is.Equal(config.URI, DefaultURI)
}

func setupConfigTest(t *testing.T) (*is.I, *Config) {
	is := is.New(t)
	cfgData := bytes.NewBuffer([]byte(configFile))
	config, err := LoadConfiguration(cfgData)
	is.NoErr(err)

	return is, config
}

var configFile string = `
uri: urn:diwise:workspace:test
notifier:
  enabled: true
  endpoint: http://lolcathost:1234/notify
classes:
  - name: Library
    layout: permissive
    features:
      - name: name
      - name: books
        kind: containment
        many: true
      - name: featured
        kind: reference
  - name: Book
    features:
      - name: title
      - name: pages
      - name: authors
        many: true
`
